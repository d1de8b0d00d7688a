package direction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/store"
)

type fakeDirectionStore struct {
	directions []planner.RouteDirection
}

func (f *fakeDirectionStore) FindByCountry(_ context.Context, _ string, _ store.DirectionQuery) ([]planner.RouteDirection, error) {
	return f.directions, nil
}

func baseDirection(id int64, name string) planner.RouteDirection {
	return planner.RouteDirection{
		ID:      id,
		UUID:    name,
		Name:    name,
		Status:  planner.DirectionActive,
		TagList: []string{"hiking", "culture"},
		RolloutPercent: 100,
		Itinerary: planner.ItinerarySkeleton{DailyPace: planner.PaceModerate},
	}
}

func TestSelect_FiltersInactiveDirections(t *testing.T) {
	d := baseDirection(1, "draft-route")
	d.Status = planner.DirectionDraft
	fake := &fakeDirectionStore{directions: []planner.RouteDirection{d}}
	sel := NewSelector(fake)

	result, err := sel.Select(context.Background(), planner.UserIntent{}, "JP", 0, planner.Identity{})
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	assert.Empty(t, result.Rejected)
}

func TestSelect_RolloutRequiresUserIDBelowThreshold(t *testing.T) {
	d := baseDirection(1, "limited-route")
	d.RolloutPercent = 1 // effectively impossible for almost every hash
	fake := &fakeDirectionStore{directions: []planner.RouteDirection{d}}
	sel := NewSelector(fake)

	_, err := sel.Select(context.Background(), planner.UserIntent{}, "JP", 0, planner.Identity{})
	require.NoError(t, err)

	// A missing userId with rolloutPercent < 100 must always be filtered out.
	result, err := sel.Select(context.Background(), planner.UserIntent{}, "JP", 0, planner.Identity{UserID: ""})
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
	assert.Empty(t, result.Rejected)
}

func TestSelect_SeasonFilterDropsAvoidMonth(t *testing.T) {
	d := baseDirection(1, "winter-closed")
	d.AvoidMonths = []int{1, 2}
	fake := &fakeDirectionStore{directions: []planner.RouteDirection{d}}
	sel := NewSelector(fake)

	result, err := sel.Select(context.Background(), planner.UserIntent{}, "JP", 1, planner.Identity{})
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
}

func TestSelect_ScoresTagMatchAndRanksHigherMatchFirst(t *testing.T) {
	strong := baseDirection(1, "strong-match")
	strong.TagList = []string{"hiking", "food"}
	weak := baseDirection(2, "weak-match")
	weak.TagList = []string{"shopping", "nightlife"}

	fake := &fakeDirectionStore{directions: []planner.RouteDirection{weak, strong}}
	sel := NewSelector(fake)

	result, err := sel.Select(context.Background(), planner.UserIntent{Preferences: []string{"hiking", "food"}}, "JP", 0, planner.Identity{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Recommendations)
	assert.Equal(t, "strong-match", result.Recommendations[0].Direction.UUID)
	assert.Equal(t, 100.0, result.Recommendations[0].ScoreBreakdown.TagMatch)
}

func TestSelect_RejectedTailCarriesPrimaryReason(t *testing.T) {
	dirs := make([]planner.RouteDirection, 0, 5)
	for i := int64(1); i <= 5; i++ {
		d := baseDirection(i, "route")
		d.TagList = []string{"food"}
		dirs = append(dirs, d)
	}
	// Make the 5th direction score strictly worse on tag match and risk
	// (season and pace tie at 50) so it sorts last and lands in the rejected
	// tail with a deterministic reason.
	dirs[4].TagList = nil
	dirs[4].RiskProfile = planner.RiskProfile{AltitudeSickness: true}

	fake := &fakeDirectionStore{directions: dirs}
	sel := NewSelector(fake)

	result, err := sel.Select(context.Background(), planner.UserIntent{Preferences: []string{"food"}, RiskTolerance: "low"}, "JP", 0, planner.Identity{})
	require.NoError(t, err)
	assert.Len(t, result.Recommendations, 3)
	require.Len(t, result.Rejected, 2)
	for _, rej := range result.Rejected {
		assert.NotEmpty(t, rej.PrimaryReason)
	}
}

func TestRiskScore_HighToleranceRewardsHighRiskRoutes(t *testing.T) {
	d := baseDirection(1, "risky")
	d.RiskProfile = planner.RiskProfile{RoadClosure: true}
	score, factors := riskScore(&d, planner.UserIntent{RiskTolerance: "high"})
	assert.Equal(t, 100.0, score)
	assert.Contains(t, factors, "roadClosure")
}
