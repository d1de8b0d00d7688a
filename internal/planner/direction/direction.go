// Package direction implements the Direction Selector (C5): gray-release
// discovery and filtering of RouteDirection records followed by a
// four-component weighted score, producing a top-three recommendation list
// plus a rejected tail.
package direction

import (
	"context"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/store"
)

// componentWeights implements the §4.5 scoring table.
var componentWeights = []float64{0.4, 0.3, 0.2, 0.1} // tagMatch, seasonality, pace, risk

// paceCompatibility maps a user's declared pace to the set of directions'
// dailyPace labels (including legacy names) it accepts, per §4.5.
var paceCompatibility = map[string]map[planner.DailyPace]bool{
	"relaxed":  {planner.PaceLight: true, "RELAX": true, planner.PaceModerate: true},
	"moderate": {planner.PaceModerate: true, "BALANCED": true},
	"intense":  {planner.PaceIntense: true, "CHALLENGE": true, planner.PaceModerate: true},
}

// Selector resolves direction recommendations for a user intent.
type Selector struct {
	Directions store.DirectionStore
}

// NewSelector wires a Selector to its Direction store collaborator.
func NewSelector(directions store.DirectionStore) *Selector {
	return &Selector{Directions: directions}
}

// Select runs discovery, gray-release filtering, the season filter, and
// scoring against countryCode, returning the top three recommendations and
// a rejected tail, per §4.5.
func (s *Selector) Select(ctx context.Context, intent planner.UserIntent, countryCode string, month int, identity planner.Identity) (planner.SelectionResult, error) {
	candidates, err := s.Directions.FindByCountry(ctx, countryCode, store.DirectionQuery{})
	if err != nil {
		return planner.SelectionResult{}, fmt.Errorf("direction: find by country: %w", err)
	}

	eligible := make([]*planner.RouteDirection, 0, len(candidates))
	for i := range candidates {
		d := &candidates[i]
		if !d.Selectable() {
			continue
		}
		if !passesRollout(d, identity) {
			continue
		}
		if !passesAudience(d, intent) {
			continue
		}
		if month > 0 && containsMonth(d.AvoidMonths, month) {
			continue
		}
		eligible = append(eligible, d)
	}

	scored := make([]planner.DirectionRecommendation, 0, len(eligible))
	for _, d := range eligible {
		scored = append(scored, score(d, intent, month))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].ScoreBreakdown.Total > scored[j].ScoreBreakdown.Total
	})

	var result planner.SelectionResult
	for i, rec := range scored {
		switch {
		case i < 3:
			result.Recommendations = append(result.Recommendations, rec)
		case i < 6:
			rec.PrimaryReason = smallestWeightedComponent(rec.ScoreBreakdown)
			result.Rejected = append(result.Rejected, rec)
		default:
			// entries beyond the sixth are neither recommended nor
			// surfaced as a rejected candidate; §4.5 only carries a
			// bounded tail of three.
		}
	}
	return result, nil
}

// passesRollout implements §4.5's rollout gray-release rule: accept iff
// hash(userId) mod 100 + 1 <= rolloutPercent. rolloutPercent = 100 always
// passes; a missing userId with rolloutPercent < 100 is filtered out.
func passesRollout(d *planner.RouteDirection, identity planner.Identity) bool {
	if d.RolloutPercent >= 100 {
		return true
	}
	if identity.UserID == "" {
		return false
	}
	bucket := int(xxhash.Sum64String(identity.UserID)%100) + 1
	return bucket <= d.RolloutPercent
}

// passesAudience implements §4.5's persona/locale audience filter: the
// user's set must share at least one element with the filter's, an empty
// user set failing a non-empty filter.
func passesAudience(d *planner.RouteDirection, intent planner.UserIntent) bool {
	if d.AudienceFilter == nil {
		return true
	}
	if len(d.AudienceFilter.Persona) > 0 && !intersects(d.AudienceFilter.Persona, intent.Persona) {
		return false
	}
	if len(d.AudienceFilter.Locale) > 0 && !intersects(d.AudienceFilter.Locale, intent.Locale) {
		return false
	}
	return true
}

func intersects(filterSet, userSet []string) bool {
	if len(userSet) == 0 {
		return false
	}
	have := make(map[string]struct{}, len(userSet))
	for _, v := range userSet {
		have[v] = struct{}{}
	}
	for _, v := range filterSet {
		if _, ok := have[v]; ok {
			return true
		}
	}
	return false
}

func containsMonth(months []int, month int) bool {
	for _, m := range months {
		if m == month {
			return true
		}
	}
	return false
}

func score(d *planner.RouteDirection, intent planner.UserIntent, month int) planner.DirectionRecommendation {
	tagScore, matched, unmatched := tagMatchScore(d, intent)
	seasonScore, seasonFlag := seasonalityScore(d, month)
	paceScore, paceLabel := paceScore(d, intent)
	riskScore, riskFactors := riskScore(d, intent)

	components := []float64{tagScore, seasonScore, paceScore, riskScore}
	total := stat.Mean(components, componentWeights) * sumWeights(componentWeights)

	return planner.DirectionRecommendation{
		Direction: d,
		ScoreBreakdown: planner.ScoreBreakdown{
			TagMatch:    tagScore,
			Seasonality: seasonScore,
			Pace:        paceScore,
			Risk:        riskScore,
			Total:       total,
		},
		MatchedSignals: planner.MatchedSignals{
			MatchedTags:   matched,
			UnmatchedTags: unmatched,
			SeasonFlag:    seasonFlag,
			PaceLabel:     paceLabel,
			RiskFactors:   riskFactors,
		},
	}
}

// sumWeights un-normalises gonum's weighted mean back into the §4.5 0-100
// weighted-sum total (the weights already sum to 1, so this is a no-op in
// practice but keeps the formula legible if the weight table ever changes).
func sumWeights(weights []float64) float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return sum
}

func tagMatchScore(d *planner.RouteDirection, intent planner.UserIntent) (float64, []string, []string) {
	if len(intent.Preferences) == 0 {
		return 50, nil, nil
	}
	if len(d.TagList) == 0 {
		return 30, nil, intent.Preferences
	}
	routeTags := make(map[string]struct{}, len(d.TagList))
	for _, t := range d.TagList {
		routeTags[t] = struct{}{}
	}
	var matched, unmatched []string
	for _, p := range intent.Preferences {
		if _, ok := routeTags[p]; ok {
			matched = append(matched, p)
		} else {
			unmatched = append(unmatched, p)
		}
	}
	denom := len(intent.Preferences)
	if len(d.TagList) > denom {
		denom = len(d.TagList)
	}
	return float64(len(matched)) / float64(denom) * 100, matched, unmatched
}

func seasonalityScore(d *planner.RouteDirection, month int) (float64, string) {
	if month <= 0 {
		return 50, "unknown"
	}
	if containsMonth(d.AvoidMonths, month) {
		return 0, "avoid"
	}
	if containsMonth(d.BestMonths, month) {
		return 100, "best"
	}
	return 33, "neutral"
}

func paceScore(d *planner.RouteDirection, intent planner.UserIntent) (float64, string) {
	if intent.Pace == "" {
		return 50, "unknown"
	}
	compat, ok := paceCompatibility[intent.Pace]
	if !ok {
		return 50, "unknown"
	}
	if compat[d.Itinerary.DailyPace] {
		return 100, "compatible"
	}
	return 30, "incompatible"
}

func riskScore(d *planner.RouteDirection, intent planner.UserIntent) (float64, []string) {
	hasHighRisk := d.RiskProfile.HasHighRisk()
	var factors []string
	if d.RiskProfile.AltitudeSickness {
		factors = append(factors, "altitudeSickness")
	}
	if d.RiskProfile.RoadClosure {
		factors = append(factors, "roadClosure")
	}

	switch intent.RiskTolerance {
	case "low":
		if !hasHighRisk {
			return 100, factors
		}
		return 30, factors
	case "high":
		if hasHighRisk {
			return 100, factors
		}
		return 30, factors
	case "medium":
		return 70, factors
	default:
		return 50, factors
	}
}

func smallestWeightedComponent(b planner.ScoreBreakdown) string {
	weighted := map[string]float64{
		"tagMatch":    b.TagMatch * componentWeights[0],
		"seasonality": b.Seasonality * componentWeights[1],
		"pace":        b.Pace * componentWeights[2],
		"risk":        b.Risk * componentWeights[3],
	}
	best := ""
	bestVal := 0.0
	first := true
	for _, name := range []string{"tagMatch", "seasonality", "pace", "risk"} {
		v := weighted[name]
		if first || v < bestVal {
			best, bestVal = name, v
			first = false
		}
	}
	return best
}
