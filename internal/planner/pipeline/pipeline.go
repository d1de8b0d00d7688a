// Package pipeline implements the Planning Pipeline (C9): the end-to-end
// orchestration of direction selection, candidate generation, time-matrix
// construction, and solving for one day, with trace recording at each
// stage in strict selection -> pool -> matrix -> solve order.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/cache"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/direction"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/poi"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/solver"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/timematrix"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/trace"
)

var log = logrus.WithField("component", "pipeline")

// Request bundles everything planDay needs beyond the solver's own
// PlanRequest: the direction-selection intent and the POI generation
// parameters.
type Request struct {
	Plan         planner.PlanRequest
	Intent       planner.UserIntent
	CountryCode  string
	Month        int
	Identity     planner.Identity
	Regions      []string
	BufferMeters float64
}

// Pipeline wires together the C5/C4/C1/C3 components plus the cache and
// trace store that observe them.
type Pipeline struct {
	Selector  *direction.Selector
	Generator *poi.Generator
	Matrix    *timematrix.Builder
	Cache     *cache.TwoTier
	Traces    *trace.Store
}

// New wires a Pipeline from its collaborators. c and traces may
// be nil-backed by the caller's own zero-value choices (a nil Cache field
// disables caching; a nil Traces disables recording), but callers are
// expected to always supply both in production.
func New(selector *direction.Selector, generator *poi.Generator, matrix *timematrix.Builder, c *cache.TwoTier, traces *trace.Store) *Pipeline {
	return &Pipeline{Selector: selector, Generator: generator, Matrix: matrix, Cache: c, Traces: traces}
}

// PlanDay runs the §4.9 orchestration: selection -> pool -> matrix -> solve,
// strictly in that order, recording each stage's latency and outcome to the
// trace store before returning the combined result. When req.Plan.Deadline
// is set, it bounds ctx for every stage below; a deadline already exhausted
// by the time a stage would start short-circuits the remaining stages and
// returns the most recent best-effort PlanResult alongside
// planner.ErrDeadlineExceeded, per §5/§7.
func (p *Pipeline) PlanDay(ctx context.Context, req Request) (*planner.PlanResult, error) {
	requestID := req.Plan.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()
	if p.Traces != nil {
		p.Traces.Open(requestID, start)
		defer p.Traces.Close(requestID, time.Now())
	}

	if !req.Plan.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Plan.Deadline)
		defer cancel()
	}

	selected, breakdown, signals, alternatives, err := p.selectDirection(ctx, requestID, req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: select direction: %w", err)
	}
	if ctx.Err() != nil {
		return p.deadlineResult(requestID, selected, breakdown, signals, alternatives), planner.ErrDeadlineExceeded
	}

	candidates, poolEvo, err := p.generateCandidates(ctx, requestID, selected, req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate candidates: %w", err)
	}
	if ctx.Err() != nil {
		return p.deadlineResult(requestID, selected, breakdown, signals, alternatives), planner.ErrDeadlineExceeded
	}

	solveReq := req.Plan
	solveReq.Nodes = append(append([]planner.PlanNode(nil), req.Plan.Nodes...), candidatesToNodes(candidates, req.Plan.DayBoundary)...)

	matrixStart := time.Now()
	matrix := p.Matrix.Build(ctx, solveReq.Nodes, solveReq.Transport)
	if p.Traces != nil {
		p.Traces.RecordLatency(requestID, trace.StageConstraintsInject, float64(time.Since(matrixStart).Milliseconds()))
		if p.Matrix.Provider == nil {
			p.Traces.RecordError(requestID, false, false, true, "no travel-time provider configured, using fallback estimate for every leg")
		}
	}
	if ctx.Err() != nil {
		return p.deadlineResult(requestID, selected, breakdown, signals, alternatives), planner.ErrDeadlineExceeded
	}

	solveStart := time.Now()
	result, err := solver.Solve(ctx, solveReq, matrix)
	if err != nil {
		return nil, fmt.Errorf("pipeline: solve: %w", err)
	}
	if p.Traces != nil {
		p.Traces.RecordLatency(requestID, trace.StagePlanGenerate, float64(time.Since(solveStart).Milliseconds()))
		p.Traces.RecordQuality(requestID, qualityFrom(result, selected))
	}

	var terrain planner.TerrainFacts
	if selected != nil {
		terrain = planner.TerrainFacts{MaxElevationM: selected.Soft.MaxElevationM, TotalAscentM: selected.Soft.MaxDailyAscentM}
	}

	planResult := &planner.PlanResult{
		Plan: planner.Plan{Days: []planner.PlanDay{{
			Day:                1,
			OptimizationResult: *result,
			TerrainFacts:       terrain,
		}}},
		OptimizationResult: *result,
		DecisionLog: planner.DecisionLog{
			RouteDirection: planner.RouteDirectionDecision{
				Selected:       selected,
				ScoreBreakdown: breakdown,
				MatchedSignals: signals,
				Alternatives:   alternatives,
			},
		},
	}
	if p.Traces != nil {
		planResult.Trace = p.Traces.Get(requestID)
	}

	log.WithFields(logrus.Fields{
		"requestId": requestID,
		"status":    result.Status,
		"poolFinal": len(candidates),
		"poolInitial": poolEvo.CoreCount + poolEvo.RecommendedCount + poolEvo.OptionalCount,
	}).Info("pipeline: day planned")

	return planResult, nil
}

// deadlineResult builds the §7 "deadline exceeded" best-effort PlanResult:
// whatever direction was already selected, an INFEASIBLE empty solve, and
// the trace accumulated up to the point the deadline was hit.
func (p *Pipeline) deadlineResult(requestID string, selected *planner.RouteDirection, breakdown planner.ScoreBreakdown, signals planner.MatchedSignals, alternatives []planner.DirectionRecommendation) *planner.PlanResult {
	if p.Traces != nil {
		p.Traces.RecordError(requestID, false, false, true, "request deadline exceeded, returning best-effort partial result")
	}
	var terrain planner.TerrainFacts
	if selected != nil {
		terrain = planner.TerrainFacts{MaxElevationM: selected.Soft.MaxElevationM, TotalAscentM: selected.Soft.MaxDailyAscentM}
	}
	infeasible := planner.OptimizationResult{Status: planner.StatusInfeasible}
	result := &planner.PlanResult{
		Plan: planner.Plan{Days: []planner.PlanDay{{
			Day:                1,
			OptimizationResult: infeasible,
			TerrainFacts:       terrain,
		}}},
		OptimizationResult: infeasible,
		DecisionLog: planner.DecisionLog{
			RouteDirection: planner.RouteDirectionDecision{
				Selected:       selected,
				ScoreBreakdown: breakdown,
				MatchedSignals: signals,
				Alternatives:   alternatives,
			},
		},
	}
	if p.Traces != nil {
		result.Trace = p.Traces.Get(requestID)
	}
	return result
}

// candidatesToNodes projects the C4 pool into soft PlanNodes so C1/C3 solve
// over it, per §2's "C1 materialises a robust time matrix over the pool".
// A Place carries no opening hours of its own, so each candidate is given
// the day's own boundary as its single time window — it is constrained by
// the solver's schedule, not by any hour it can't be visited.
func candidatesToNodes(candidates []planner.ActivityCandidate, dayBoundary planner.TimeWindow) []planner.PlanNode {
	nodes := make([]planner.PlanNode, 0, len(candidates))
	for _, c := range candidates {
		priority := 3
		switch c.Priority {
		case planner.PlaceCore:
			priority = 2
		case planner.PlaceOptional:
			priority = 4
		}
		if c.MustSee {
			priority = 1
		}
		reward := c.QualityScore * 100
		nodes = append(nodes, planner.PlanNode{
			ID:                 "poi:" + c.UUID,
			Name:               c.Name,
			Type:               planner.NodePOI,
			Geo:                c.Geo,
			ServiceDurationMin: c.DurationMin,
			TimeWindows:        []planner.TimeWindow{dayBoundary},
			Constraints: planner.NodeConstraints{
				PriorityLevel: priority,
				Reward:        &reward,
			},
			Meta: planner.NodeMeta{
				Tags: c.IntentTags,
			},
		})
	}
	return nodes
}

// selectDirection runs C5 cache-aware, per §4.9 step 2: a direction-selection
// cache hit for the (intent, country, month) key skips calling the selector
// entirely; a miss calls it and writes the result back under the §4.7 TTL
// policy.
func (p *Pipeline) selectDirection(ctx context.Context, requestID string, req Request) (*planner.RouteDirection, planner.ScoreBreakdown, planner.MatchedSignals, []planner.DirectionRecommendation, error) {
	start := time.Now()

	var cacheKey string
	var result planner.SelectionResult
	var hit bool
	if p.Cache != nil {
		cacheKey = cache.DirectionSelectionKey(req.CountryCode, req.Month, req.Intent.Preferences, req.Intent.Pace, req.Intent.RiskTolerance, req.Intent.DurationDays)
		result, hit = p.Cache.GetDirectionSelection(ctx, cacheKey)
	}

	var err error
	if !hit {
		result, err = p.Selector.Select(ctx, req.Intent, req.CountryCode, req.Month, req.Identity)
		if err != nil {
			if p.Traces != nil {
				p.Traces.RecordLatency(requestID, trace.StageRDSelect, float64(time.Since(start).Milliseconds()))
			}
			return nil, planner.ScoreBreakdown{}, planner.MatchedSignals{}, nil, err
		}
		if p.Cache != nil {
			p.Cache.SetDirectionSelection(ctx, cacheKey, result, req.Month > 0)
		}
	}
	if p.Traces != nil {
		p.Traces.RecordLatency(requestID, trace.StageRDSelect, float64(time.Since(start).Milliseconds()))
	}

	if len(result.Recommendations) == 0 {
		return nil, planner.ScoreBreakdown{}, planner.MatchedSignals{}, result.Rejected, nil
	}
	top := result.Recommendations[0]
	if p.Traces != nil {
		p.Traces.RecordDecisionContext(requestID, planner.DecisionContext{
			ScoreBreakdown: map[string]float64{
				"tagMatch": top.ScoreBreakdown.TagMatch, "seasonality": top.ScoreBreakdown.Seasonality,
				"pace": top.ScoreBreakdown.Pace, "risk": top.ScoreBreakdown.Risk,
			},
			MatchedSignals: map[string]any{
				"matchedTags": top.MatchedSignals.MatchedTags, "paceLabel": top.MatchedSignals.PaceLabel,
			},
		})
		if top.Direction != nil {
			q := planner.Quality{SelectedRDID: top.Direction.ID, SelectedRDName: top.Direction.Name}
			p.Traces.RecordQuality(requestID, q)
		}
	}
	return top.Direction, top.ScoreBreakdown, top.MatchedSignals, result.Recommendations[1:], nil
}

// generateCandidates runs C4 cache-aware, per §4.9 step 3: a POI-pool cache
// hit for the (directionId, bufferMeters, signaturePois) key skips calling
// the generator entirely; a miss calls it and writes the result back under
// the §4.7 TTL policy.
func (p *Pipeline) generateCandidates(ctx context.Context, requestID string, selected *planner.RouteDirection, req Request) ([]planner.ActivityCandidate, poi.PoolEvolution, error) {
	if selected == nil {
		return nil, poi.PoolEvolution{}, nil
	}
	start := time.Now()

	var cacheKey string
	var candidates []planner.ActivityCandidate
	var hit bool
	if p.Cache != nil {
		cacheKey = cache.POIPoolKey(selected.UUID, req.BufferMeters, selected.SignaturePois)
		candidates, hit = p.Cache.GetPOIPool(ctx, cacheKey)
	}

	var evo poi.PoolEvolution
	var err error
	filters := []string{}
	if !hit {
		candidates, evo, err = p.Generator.Generate(ctx, selected, req.Regions, req.BufferMeters)
		if err != nil {
			if p.Traces != nil {
				p.Traces.RecordLatency(requestID, trace.StagePOIPool, float64(time.Since(start).Milliseconds()))
			}
			return nil, evo, err
		}
		if p.Cache != nil {
			p.Cache.SetPOIPool(ctx, cacheKey, candidates, selected.SignaturePois)
		}
		filters = append(filters, fmt.Sprintf("duplicates dropped: %d", evo.DuplicatesDropped))
	} else {
		evo = poi.PoolEvolution{CoreCount: len(candidates)}
		filters = append(filters, "served from poi pool cache")
	}

	if p.Traces != nil {
		p.Traces.RecordLatency(requestID, trace.StagePOIPool, float64(time.Since(start).Milliseconds()))
		p.Traces.RecordPoolEvolution(requestID, planner.PoolEvolution{
			Initial:          evo.CoreCount + evo.RecommendedCount + evo.OptionalCount + evo.DuplicatesDropped,
			AfterRDFilter:    evo.CoreCount + evo.RecommendedCount + evo.OptionalCount,
			AfterConstraints: len(candidates),
			Final:            len(candidates),
			Filters:          filters,
		})
	}
	return candidates, evo, nil
}

func qualityFrom(result *planner.OptimizationResult, selected *planner.RouteDirection) planner.Quality {
	q := planner.Quality{}
	for _, d := range result.Dropped {
		switch d.ReasonCode {
		case planner.ReasonHardNodeProtection, planner.ReasonEarlyDepartureConflict:
			q.HardHits++
		default:
			q.SoftHits++
		}
	}
	q.PoolSize = len(result.Route) + len(result.Dropped)
	if selected != nil {
		q.SelectedRDID = selected.ID
		q.SelectedRDName = selected.Name
	}
	return q
}
