package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

func TestExplain_EarlyDepartureConflict_AlwaysIncludesRequiredDeparture(t *testing.T) {
	node := &planner.PlanNode{Name: "Sunrise Temple"}
	exp := Explain(node, planner.ReasonEarlyDepartureConflict, Context{
		RequiredDeparture: "09:00",
		EffectiveEarliest: "10:00",
	})
	assert.Equal(t, "09:00", exp.Facts["required_departure"])
	assert.Contains(t, exp.Text, "Sunrise Temple")
	assert.NotEmpty(t, exp.Suggestions)
	assert.LessOrEqual(t, len(exp.Suggestions), 4)
}

func TestExplain_RobustTimeInfeasible_AlwaysIncludesBufferPolicy(t *testing.T) {
	node := &planner.PlanNode{Name: "Lakeview Overlook"}
	exp := Explain(node, planner.ReasonRobustTimeInfeasible, Context{
		BufferFactor:   1.5,
		FixedBufferMin: 15,
	})
	assert.Equal(t, 1.5, exp.Facts["buffer_factor"])
	assert.Equal(t, 15.0, exp.Facts["fixed_buffer"])
}

func TestExplain_AllReasonCodesProduceNonEmptySuggestions(t *testing.T) {
	codes := []planner.DropReasonCode{
		planner.ReasonTimeWindowConflict,
		planner.ReasonInsufficientTotalTime,
		planner.ReasonClosedDay,
		planner.ReasonHighWaitTime,
		planner.ReasonLowPriorityNotWorth,
		planner.ReasonHardNodeProtection,
		planner.ReasonRobustTimeInfeasible,
		planner.ReasonEarlyDepartureConflict,
	}
	node := &planner.PlanNode{Name: "Test Stop"}
	for _, c := range codes {
		exp := Explain(node, c, Context{})
		assert.NotEmpty(t, exp.Suggestions, "reason %s should have suggestions", c)
		assert.Contains(t, exp.Text, "Test Stop")
	}
}
