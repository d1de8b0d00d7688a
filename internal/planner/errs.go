package planner

import "errors"

// Sentinel errors for the conditions §7 marks "surfaced to caller" as a typed
// error rather than a value the caller inspects. "No direction matches" is
// surfaced as an empty SelectionResult.Recommendations, not one of these —
// it is a value, not an error, per §7's own distinction.
var (
	// ErrNoAdapter is returned by the data-source router when no adapter,
	// including no "*" fallback, is registered for a resolved country code.
	ErrNoAdapter = errors.New("planner: no adapter registered for country")

	// ErrDeadlineExceeded is returned, alongside a best-effort partial
	// PlanResult, when PlanRequest.Deadline is exhausted before the pipeline
	// reaches the solve stage.
	ErrDeadlineExceeded = errors.New("planner: request deadline exceeded")
)
