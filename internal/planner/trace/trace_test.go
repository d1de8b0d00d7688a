package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

func TestRecordLatency_IsIdempotentOverwrite(t *testing.T) {
	s, err := NewStore(8)
	require.NoError(t, err)

	s.Open("req-1", time.Now())
	s.RecordLatency("req-1", StageRDSelect, 10)
	s.RecordLatency("req-1", StageRDSelect, 25)

	got := s.Get("req-1")
	require.NotNil(t, got)
	assert.Equal(t, 25.0, got.Latencies.RDSelect)
}

func TestStore_EvictsOldestBeyondCapacity(t *testing.T) {
	s, err := NewStore(2)
	require.NoError(t, err)

	s.Open("a", time.Now())
	s.Open("b", time.Now())
	s.Open("c", time.Now())

	assert.Nil(t, s.Get("a"), "oldest trace should have been evicted")
	assert.NotNil(t, s.Get("b"))
	assert.NotNil(t, s.Get("c"))
}

func TestGenerateReport_IdentifiesDominantStage(t *testing.T) {
	tr := &planner.Trace{
		RequestID: "req-2",
		Latencies: planner.Latencies{
			RDSelect:     5,
			POIPool:      120,
			PlanGenerate: 40,
		},
	}
	report := GenerateReport(tr)
	require.NotNil(t, report)
	assert.Equal(t, "poiPool", report.DominantStage)
	assert.Equal(t, 120.0, report.DominantStageMillis)
}

func TestGenerateReport_ExplainsPoolShrinkage(t *testing.T) {
	tr := &planner.Trace{
		RequestID: "req-3",
		PoolEvolution: planner.PoolEvolution{
			Initial:          80,
			AfterRDFilter:    50,
			AfterConstraints: 30,
			Final:            12,
			Filters:          []string{"corridor buffer excluded 18"},
		},
	}
	report := GenerateReport(tr)
	require.NotNil(t, report)
	assert.Contains(t, report.PoolShrinkage, "corridor buffer excluded 18")
	joined := report.PoolShrinkage[0] + report.PoolShrinkage[1] + report.PoolShrinkage[2] + report.PoolShrinkage[3]
	assert.Contains(t, joined, "initial=80")
	assert.Contains(t, joined, "final=12")
}

func TestMetricsSnapshot_RollsUpClosedTraces(t *testing.T) {
	s, err := NewStore(8)
	require.NoError(t, err)

	for i, v := range []float64{10, 20, 30} {
		id := "req-" + string(rune('a'+i))
		s.Open(id, time.Now())
		s.RecordLatency(id, StageRDSelect, v)
		s.Close(id, time.Now())
	}

	snap := s.MetricsSnapshot()
	assert.InDelta(t, 20.0, snap.AvgLatencyMillis, 0.001)
}

func TestRecordError_AccumulatesMessagesAndFlags(t *testing.T) {
	s, err := NewStore(8)
	require.NoError(t, err)
	s.Open("req-4", time.Now())
	s.RecordError("req-4", true, false, false, "corridor polygon self-intersects")
	s.RecordError("req-4", false, true, false, "weather adapter timed out")

	got := s.Get("req-4")
	require.NotNil(t, got)
	assert.True(t, got.Errors.CorridorGeomInvalid)
	assert.True(t, got.Errors.POIQueryTimeout)
	assert.Len(t, got.Errors.Messages, 2)
}
