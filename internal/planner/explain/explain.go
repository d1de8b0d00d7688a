// Package explain renders a drop reason code into human text, a structured
// facts object, and a stable suggestion catalogue (C2). It is a pure
// function package: no I/O, no shared state.
package explain

import (
	"fmt"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

// Context carries the facts available when a node is dropped. Not every
// field is relevant to every reason code.
type Context struct {
	ArrivalTime         string
	WindowClose         string
	WaitMinutes         float64
	DayEnd              string
	HardNodeCount       int
	RequiredDeparture   string
	EffectiveEarliest   string
	BufferFactor        float64
	FixedBufferMin      float64
}

var suggestionCatalogue = map[planner.DropReasonCode][]string{
	planner.ReasonTimeWindowConflict: {
		"Move this stop earlier in the day",
		"Visit on a different day",
		"Check for an alternate opening window",
	},
	planner.ReasonInsufficientTotalTime: {
		"Shorten service time at nearby stops",
		"Drop a lower-priority stop to make room",
		"Consider splitting the day across two itineraries",
	},
	planner.ReasonClosedDay: {
		"Pick a different day of the week",
		"Substitute a similar POI that is open",
	},
	planner.ReasonHighWaitTime: {
		"Reorder stops to reduce idle time",
		"Insert a nearby filler activity during the wait",
	},
	planner.ReasonLowPriorityNotWorth: {
		"Raise this stop's priority if it matters more than the default",
		"Add it to a future day's itinerary",
	},
	planner.ReasonHardNodeProtection: {
		"Add an extra day to fit both the hard commitment and this stop",
		"Find a soft alternative near the hard node",
	},
	planner.ReasonRobustTimeInfeasible: {
		"Reduce the buffer factor if traffic conditions allow",
		"Choose a faster transport mode between these stops",
		"Drop an intermediate stop to shorten the leg",
	},
	planner.ReasonEarlyDepartureConflict: {
		"Start the day earlier",
		"Relax the earliest-first-stop preference",
		"Move this hard commitment to a later day",
	},
}

func suggestions(code planner.DropReasonCode) []string {
	s := suggestionCatalogue[code]
	if len(s) > 4 {
		return s[:4]
	}
	return s
}

// Explain renders the explanation for a dropped node under the given reason
// code and context.
func Explain(node *planner.PlanNode, code planner.DropReasonCode, ctx Context) planner.Explanation {
	facts := map[string]any{}
	var text string

	switch code {
	case planner.ReasonTimeWindowConflict:
		facts["close_time"] = ctx.WindowClose
		facts["arrival_time"] = ctx.ArrivalTime
		text = fmt.Sprintf("%s closes at %s but the route would arrive at %s.", node.Name, ctx.WindowClose, ctx.ArrivalTime)

	case planner.ReasonInsufficientTotalTime:
		facts["arrival_time"] = ctx.ArrivalTime
		facts["day_end"] = ctx.DayEnd
		text = fmt.Sprintf("There isn't enough time left in the day to visit %s before %s.", node.Name, ctx.DayEnd)

	case planner.ReasonClosedDay:
		text = fmt.Sprintf("%s is closed on the planned day.", node.Name)

	case planner.ReasonHighWaitTime:
		facts["wait_minutes"] = ctx.WaitMinutes
		facts["arrival_time"] = ctx.ArrivalTime
		text = fmt.Sprintf("Visiting %s would mean waiting %.0f minutes for it to open.", node.Name, ctx.WaitMinutes)

	case planner.ReasonLowPriorityNotWorth:
		text = fmt.Sprintf("%s is a lower-priority stop that didn't fit the remaining schedule.", node.Name)

	case planner.ReasonHardNodeProtection:
		facts["hard_node_count"] = ctx.HardNodeCount
		text = fmt.Sprintf("%s was dropped to protect %d fixed commitment(s) already on the day.", node.Name, ctx.HardNodeCount)

	case planner.ReasonRobustTimeInfeasible:
		facts["buffer_factor"] = ctx.BufferFactor
		facts["fixed_buffer"] = ctx.FixedBufferMin
		text = fmt.Sprintf("%s is reachable under ideal travel times but not once the %.1fx buffer and %.0f-minute fixed buffer are applied.", node.Name, ctx.BufferFactor, ctx.FixedBufferMin)

	case planner.ReasonEarlyDepartureConflict:
		facts["required_departure"] = ctx.RequiredDeparture
		facts["effective_earliest"] = ctx.EffectiveEarliest
		text = fmt.Sprintf("%s requires a departure by %s, which conflicts with the earliest allowed first stop of %s.", node.Name, ctx.RequiredDeparture, ctx.EffectiveEarliest)

	default:
		text = fmt.Sprintf("%s could not be scheduled.", node.Name)
	}

	return planner.Explanation{
		Text:        text,
		Facts:       facts,
		Suggestions: suggestions(code),
	}
}
