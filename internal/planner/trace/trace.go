// Package trace implements the C8 observability layer: a bounded,
// LRU-capped in-memory store of per-request Trace records plus the rolling
// aggregate metrics and report generation built on top of it.
package trace

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

// Store is an LRU-capped, concurrency-safe collection of open and closed
// traces, keyed by requestId.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *planner.Trace]

	metricsMu sync.Mutex
	metrics   Aggregate
}

// Aggregate holds the rolling metrics arrays described in §4.8. Arrays are
// capped at maxSamples; the oldest sample is evicted on overflow.
type Aggregate struct {
	Latencies       []float64
	PoolSizes       []int
	HardHits        []int
	SoftHits        []int
	RepairActions   []int
	DirectionCounts map[int64]int
	ErrorCounts     map[string]int
}

const maxSamples = 2048

// NewStore builds a Store with room for capacity open/closed traces. capacity
// must be positive.
func NewStore(capacity int) (*Store, error) {
	c, err := lru.New[string, *planner.Trace](capacity)
	if err != nil {
		return nil, fmt.Errorf("trace: new store: %w", err)
	}
	return &Store{
		cache: c,
		metrics: Aggregate{
			DirectionCounts: map[int64]int{},
			ErrorCounts:     map[string]int{},
		},
	}, nil
}

// Open creates and stores a new Trace for requestId at the given start time,
// overwriting any previous trace under the same id.
func (s *Store) Open(requestID string, start time.Time) *planner.Trace {
	t := &planner.Trace{RequestID: requestID, StartTime: start}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(requestID, t)
	return t
}

// Get returns the trace for requestId, or nil if it has been evicted or was
// never opened.
func (s *Store) Get(requestID string) *planner.Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return nil
	}
	return t
}

// Stage names a pipeline latency bucket (§3 Trace.latencies.*).
type Stage string

const (
	StageRDSelect          Stage = "rdSelect"
	StagePOIPool           Stage = "poiPool"
	StageConstraintsInject Stage = "constraintsInject"
	StagePlanGenerate      Stage = "planGenerate"
	StageNeptuneRepair     Stage = "neptuneRepair"
)

// RecordLatency idempotently sets one latency field (later calls for the
// same stage overwrite earlier ones, per §4.8).
func (s *Store) RecordLatency(requestID string, stage Stage, valueMillis float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return
	}
	switch stage {
	case StageRDSelect:
		t.Latencies.RDSelect = valueMillis
	case StagePOIPool:
		t.Latencies.POIPool = valueMillis
	case StageConstraintsInject:
		t.Latencies.ConstraintsInject = valueMillis
	case StagePlanGenerate:
		t.Latencies.PlanGenerate = valueMillis
	case StageNeptuneRepair:
		t.Latencies.NeptuneRepair = valueMillis
	}
}

// RecordError idempotently flags one of the boolean error conditions and
// appends a human-readable message.
func (s *Store) RecordError(requestID string, corridorGeomInvalid, poiQueryTimeout, fallbackUsed bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return
	}
	t.Errors.CorridorGeomInvalid = t.Errors.CorridorGeomInvalid || corridorGeomInvalid
	t.Errors.POIQueryTimeout = t.Errors.POIQueryTimeout || poiQueryTimeout
	t.Errors.FallbackUsed = t.Errors.FallbackUsed || fallbackUsed
	if message != "" {
		t.Errors.Messages = append(t.Errors.Messages, message)
	}
}

// RecordQuality overwrites the trace's quality snapshot.
func (s *Store) RecordQuality(requestID string, q planner.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return
	}
	t.Quality = q
}

// RecordPoolEvolution overwrites the trace's pool-shrinkage record.
func (s *Store) RecordPoolEvolution(requestID string, pe planner.PoolEvolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return
	}
	t.PoolEvolution = pe
}

// RecordDecisionContext overwrites the trace's direction-selection rationale.
func (s *Store) RecordDecisionContext(requestID string, dc planner.DecisionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.cache.Get(requestID)
	if !ok {
		return
	}
	t.DecisionContext = dc
}

// Close finalizes a trace at the given end time, stamping t.EndTime and
// rolling its outcome into the store's aggregate metrics.
func (s *Store) Close(requestID string, end time.Time) {
	t := s.Get(requestID)
	if t == nil {
		return
	}
	s.mu.Lock()
	t.EndTime = end
	s.mu.Unlock()
	s.recordAggregate(t)
}

func (s *Store) recordAggregate(t *planner.Trace) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	total := t.Latencies.RDSelect + t.Latencies.POIPool + t.Latencies.ConstraintsInject +
		t.Latencies.PlanGenerate + t.Latencies.NeptuneRepair
	s.metrics.Latencies = appendCapped(s.metrics.Latencies, total, maxSamples)
	s.metrics.PoolSizes = appendCappedInt(s.metrics.PoolSizes, t.Quality.PoolSize, maxSamples)
	s.metrics.HardHits = appendCappedInt(s.metrics.HardHits, t.Quality.HardHits, maxSamples)
	s.metrics.SoftHits = appendCappedInt(s.metrics.SoftHits, t.Quality.SoftHits, maxSamples)
	s.metrics.RepairActions = appendCappedInt(s.metrics.RepairActions, t.Quality.RepairActions, maxSamples)
	if t.Quality.SelectedRDID != 0 {
		s.metrics.DirectionCounts[t.Quality.SelectedRDID]++
	}
	if t.Errors.CorridorGeomInvalid {
		s.metrics.ErrorCounts["corridorGeomInvalid"]++
	}
	if t.Errors.POIQueryTimeout {
		s.metrics.ErrorCounts["poiQueryTimeout"]++
	}
	if t.Errors.FallbackUsed {
		s.metrics.ErrorCounts["fallbackUsed"]++
	}
}

func appendCapped(s []float64, v float64, cap int) []float64 {
	s = append(s, v)
	if len(s) > cap {
		s = s[len(s)-cap:]
	}
	return s
}

func appendCappedInt(s []int, v int, cap int) []int {
	s = append(s, v)
	if len(s) > cap {
		s = s[len(s)-cap:]
	}
	return s
}

// Snapshot returns a copy of the current aggregate metrics, including
// latency avg/p95/p99 computed from the rolling sample array.
type Snapshot struct {
	AvgLatencyMillis float64
	P95LatencyMillis float64
	P99LatencyMillis float64
	AvgPoolSize      float64
	DirectionCounts  map[int64]int
	ErrorCounts      map[string]int
}

// MetricsSnapshot computes the rolling-window summary over the recorded
// latency/pool/hit samples.
func (s *Store) MetricsSnapshot() Snapshot {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()

	directionCounts := make(map[int64]int, len(s.metrics.DirectionCounts))
	for k, v := range s.metrics.DirectionCounts {
		directionCounts[k] = v
	}
	errorCounts := make(map[string]int, len(s.metrics.ErrorCounts))
	for k, v := range s.metrics.ErrorCounts {
		errorCounts[k] = v
	}

	return Snapshot{
		AvgLatencyMillis: mean(s.metrics.Latencies),
		P95LatencyMillis: percentile(s.metrics.Latencies, 95),
		P99LatencyMillis: percentile(s.metrics.Latencies, 99),
		AvgPoolSize:      meanInt(s.metrics.PoolSizes),
		DirectionCounts:  directionCounts,
		ErrorCounts:      errorCounts,
	}
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func meanInt(data []int) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum int
	for _, v := range data {
		sum += v
	}
	return float64(sum) / float64(len(data))
}

// percentile follows the same nearest-rank-with-interpolation scheme the
// rest of the corpus uses for its latency metrics.
func percentile(data []float64, p float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	rank := p / 100.0 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	if hi >= n {
		return sorted[n-1]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// GenerateReport answers the three standing questions of §4.8 purely from
// the stored trace, or nil when t is nil (as Store.Get returns for an
// unknown requestId).
func GenerateReport(t *planner.Trace) *planner.TraceReport {
	if t == nil {
		return nil
	}

	stage, millis := dominantStage(t.Latencies)
	why := explainDirectionWin(t.DecisionContext)
	shrink := poolShrinkage(t.PoolEvolution)

	return &planner.TraceReport{
		RequestID:           t.RequestID,
		DominantStage:       stage,
		DominantStageMillis: millis,
		WhyDirectionWon:     why,
		PoolShrinkage:       shrink,
	}
}

func dominantStage(l planner.Latencies) (string, float64) {
	stages := map[string]float64{
		"rdSelect":          l.RDSelect,
		"poiPool":           l.POIPool,
		"constraintsInject": l.ConstraintsInject,
		"planGenerate":      l.PlanGenerate,
		"neptuneRepair":     l.NeptuneRepair,
	}
	best := ""
	bestVal := -1.0
	// Deterministic iteration order so ties always resolve the same way.
	for _, name := range []string{"rdSelect", "poiPool", "constraintsInject", "planGenerate", "neptuneRepair"} {
		if stages[name] > bestVal {
			bestVal = stages[name]
			best = name
		}
	}
	return best, bestVal
}

func explainDirectionWin(dc planner.DecisionContext) string {
	if len(dc.ScoreBreakdown) == 0 {
		return "no direction-selection context recorded"
	}
	var top string
	var topScore float64
	first := true
	for k, v := range dc.ScoreBreakdown {
		if first || v > topScore {
			top, topScore = k, v
			first = false
		}
	}
	return fmt.Sprintf("highest-scoring component was %q (%.1f); matched signals: %v", top, topScore, dc.MatchedSignals)
}

func poolShrinkage(pe planner.PoolEvolution) []string {
	out := []string{
		fmt.Sprintf("initial=%d", pe.Initial),
		fmt.Sprintf("afterRdFilter=%d (-%d)", pe.AfterRDFilter, pe.Initial-pe.AfterRDFilter),
		fmt.Sprintf("afterConstraints=%d (-%d)", pe.AfterConstraints, pe.AfterRDFilter-pe.AfterConstraints),
		fmt.Sprintf("final=%d (-%d)", pe.Final, pe.AfterConstraints-pe.Final),
	}
	out = append(out, pe.Filters...)
	return out
}
