package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/cache"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/direction"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/poi"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/timematrix"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/trace"
	"github.com/xudanli/tripnaraht-sub005/internal/store"
)

type fakeDirectionStore struct {
	directions []planner.RouteDirection
	calls      int
}

func (f *fakeDirectionStore) FindByCountry(_ context.Context, _ string, _ store.DirectionQuery) ([]planner.RouteDirection, error) {
	f.calls++
	return f.directions, nil
}

type fakePlaceStore struct {
	places    []planner.Place
	uuidCalls int
}

func (f *fakePlaceStore) FindByUUIDs(_ context.Context, _ []string) ([]planner.Place, error) {
	f.uuidCalls++
	return f.places, nil
}
func (f *fakePlaceStore) FindByTypeAndCorridor(_ context.Context, _ store.PlaceFilter) ([]planner.Place, error) {
	return nil, nil
}
func (f *fakePlaceStore) FindByRegionsAndCorridor(_ context.Context, _ store.RegionFilter) ([]planner.Place, error) {
	return nil, nil
}

func buildPipeline(directions []planner.RouteDirection) (*Pipeline, *trace.Store) {
	p, traces, _, _ := buildPipelineWithStores(directions, nil)
	return p, traces
}

func buildPipelineWithStores(directions []planner.RouteDirection, places []planner.Place) (*Pipeline, *trace.Store, *fakeDirectionStore, *fakePlaceStore) {
	ds := &fakeDirectionStore{directions: directions}
	ps := &fakePlaceStore{places: places}
	sel := direction.NewSelector(ds)
	gen := poi.NewGenerator(ps)
	matrix := timematrix.NewBuilder(nil)
	c := cache.NewTwoTier(cache.NewMapBackend())
	traces, _ := trace.NewStore(32)
	return New(sel, gen, matrix, c, traces), traces, ds, ps
}

func TestPlanDay_RunsSelectionPoolMatrixSolveInOrderAndRecordsTrace(t *testing.T) {
	p, traces := buildPipeline([]planner.RouteDirection{alpineLoop()})

	result, err := p.PlanDay(context.Background(), Request{
		Plan: basePlanRequest("req-1"), Intent: planner.UserIntent{Preferences: []string{"hiking"}}, CountryCode: "JP",
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "dir-7", result.DecisionLog.RouteDirection.Selected.UUID)
	assert.Equal(t, 3200.0, result.Plan.Days[0].TerrainFacts.MaxElevationM)
	assert.Len(t, result.Plan.Days, 1)

	closedTrace := traces.Get("req-1")
	require.NotNil(t, closedTrace)
	assert.False(t, closedTrace.EndTime.IsZero())
	assert.Greater(t, closedTrace.Latencies.RDSelect, -1.0)
}

func TestPlanDay_NoDirectionMatchStillSolvesWithZeroTerrainFacts(t *testing.T) {
	p, _ := buildPipeline(nil)
	result, err := p.PlanDay(context.Background(), Request{Plan: basePlanRequest("req-2"), CountryCode: "JP"})
	require.NoError(t, err)
	assert.Nil(t, result.DecisionLog.RouteDirection.Selected)
	assert.Equal(t, planner.TerrainFacts{}, result.Plan.Days[0].TerrainFacts)
}

func alpineLoop() planner.RouteDirection {
	return planner.RouteDirection{
		ID: 7, UUID: "dir-7", Name: "Alpine Loop", Status: planner.DirectionActive,
		RolloutPercent: 100, TagList: []string{"hiking"},
		SignaturePois: planner.SignaturePOIs{},
		Soft:          planner.SoftConstraints{MaxElevationM: 3200, MaxDailyAscentM: 900},
	}
}

func basePlanRequest(id string) planner.PlanRequest {
	return planner.PlanRequest{
		RequestID:   id,
		DayBoundary: planner.TimeWindow{Open: "09:00", Close: "20:00"},
		Nodes: []planner.PlanNode{
			{ID: "n1", Name: "Hotel", Type: planner.NodeHotel, Geo: planner.GeoPoint{Lat: 35.0, Lng: 139.0}},
		},
		Pacing: planner.PacingNormal,
	}
}

// TestPlanDay_DirectionSelectionCacheHitSkipsSelectorStore realizes §8's
// "cache hit for identical (intent, country, month) returns the stored
// value" property through the pipeline itself: a second PlanDay call with
// the same selection key must not call the direction store again.
func TestPlanDay_DirectionSelectionCacheHitSkipsSelectorStore(t *testing.T) {
	p, _, ds, _ := buildPipelineWithStores([]planner.RouteDirection{alpineLoop()}, nil)
	intent := planner.UserIntent{Preferences: []string{"hiking"}}

	first, err := p.PlanDay(context.Background(), Request{
		Plan: basePlanRequest("req-cache-1"), Intent: intent, CountryCode: "JP",
	})
	require.NoError(t, err)
	require.Equal(t, 1, ds.calls)

	second, err := p.PlanDay(context.Background(), Request{
		Plan: basePlanRequest("req-cache-2"), Intent: intent, CountryCode: "JP",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.calls, "second PlanDay call with the same selection key must be served from cache")
	assert.Equal(t, first.DecisionLog.RouteDirection.Selected.UUID, second.DecisionLog.RouteDirection.Selected.UUID)
}

// TestPlanDay_POIPoolCacheHitSkipsGeneratorStore mirrors the above for C4's
// pool cache, keyed by (directionId, bufferMeters, signaturePois).
func TestPlanDay_POIPoolCacheHitSkipsGeneratorStore(t *testing.T) {
	dir := alpineLoop()
	dir.SignaturePois = planner.SignaturePOIs{Examples: []string{"place-1"}}
	place := planner.Place{UUID: "place-1", Name: "Summit Shrine", Geo: planner.GeoPoint{Lat: 35.1, Lng: 139.1}}

	p, _, _, ps := buildPipelineWithStores([]planner.RouteDirection{dir}, []planner.Place{place})
	intent := planner.UserIntent{Preferences: []string{"hiking"}}

	_, err := p.PlanDay(context.Background(), Request{
		Plan: basePlanRequest("req-pool-1"), Intent: intent, CountryCode: "JP", BufferMeters: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, 1, ps.uuidCalls)

	_, err = p.PlanDay(context.Background(), Request{
		Plan: basePlanRequest("req-pool-2"), Intent: intent, CountryCode: "JP", BufferMeters: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ps.uuidCalls, "second PlanDay call with the same pool key must be served from cache")
}

// TestPlanDay_GeneratedCandidatesDriveTheSolve confirms the C4 -> C1 -> C3
// data dependency: a generated candidate must appear in the solver's route
// or drop list, not merely in trace PoolEvolution counters.
func TestPlanDay_GeneratedCandidatesDriveTheSolve(t *testing.T) {
	dir := alpineLoop()
	dir.SignaturePois = planner.SignaturePOIs{Examples: []string{"place-1"}}
	place := planner.Place{UUID: "place-1", Name: "Summit Shrine", Geo: planner.GeoPoint{Lat: 35.001, Lng: 139.001}}

	p, _, _, _ := buildPipelineWithStores([]planner.RouteDirection{dir}, []planner.Place{place})

	result, err := p.PlanDay(context.Background(), Request{
		Plan:        basePlanRequest("req-drive"),
		Intent:      planner.UserIntent{Preferences: []string{"hiking"}},
		CountryCode: "JP", BufferMeters: 10000,
	})
	require.NoError(t, err)

	opt := result.Plan.Days[0].OptimizationResult
	found := false
	for _, leg := range opt.Route {
		if leg.NodeID == "poi:place-1" {
			found = true
		}
	}
	for _, d := range opt.Dropped {
		if d.NodeID == "poi:place-1" {
			found = true
		}
	}
	assert.True(t, found, "generated candidate poi:place-1 must reach the solved route or drop list")
}

// TestPlanDay_DeadlineAlreadyExceededReturnsBestEffortPartialResult exercises
// §7's "deadline exceeded -> best-effort partial trace + INFEASIBLE" path.
func TestPlanDay_DeadlineAlreadyExceededReturnsBestEffortPartialResult(t *testing.T) {
	p, traces := buildPipeline([]planner.RouteDirection{alpineLoop()})
	planReq := basePlanRequest("req-deadline")
	planReq.Deadline = time.Now().Add(-time.Minute)

	result, err := p.PlanDay(context.Background(), Request{
		Plan: planReq, Intent: planner.UserIntent{Preferences: []string{"hiking"}}, CountryCode: "JP",
	})
	require.ErrorIs(t, err, planner.ErrDeadlineExceeded)
	require.NotNil(t, result)
	assert.Equal(t, planner.StatusInfeasible, result.Plan.Days[0].OptimizationResult.Status)
	assert.Equal(t, "dir-7", result.DecisionLog.RouteDirection.Selected.UUID)

	closedTrace := traces.Get("req-deadline")
	require.NotNil(t, closedTrace)
	assert.False(t, closedTrace.EndTime.IsZero())
}
