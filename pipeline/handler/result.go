package handler

import "time"

// Outcome records a single handler execution within one dispatch.
type Outcome struct {
	// HandlerID identifies the entry that produced this outcome.
	// Empty for synthetic outcomes (guard rejections, merge results).
	HandlerID string

	// Value is the value returned by the handler.
	Value any

	// Err is the error returned by the handler, or the recovered panic
	// wrapped as an error. Nil on success.
	Err error

	// Skipped marks an outcome for a handler that never ran, typically
	// because the dispatch was suppressed by a guard.
	Skipped bool

	// Reason explains a skipped outcome ("blocked", "throttled",
	// "debounced").
	Reason string

	// Duration is the wall-clock execution time of the handler.
	Duration time.Duration
}

// Failed returns true if the handler ran and returned an error.
func (o Outcome) Failed() bool {
	return !o.Skipped && o.Err != nil
}

// ExecutionInfo summarizes how a collected dispatch ran.
type ExecutionInfo struct {
	// Mode is the execution mode name ("sequential", "parallel", "race").
	Mode string

	// Duration is the wall-clock time across the whole call.
	Duration time.Duration

	// HandlersExecuted is the number of handlers whose settlement was
	// observed.
	HandlersExecuted int

	// HandlersSkipped is the number of selected handlers that never ran
	// (short-circuited walk, detached race losers, guard rejection).
	HandlersSkipped int
}

// Envelope is the structured result returned by DispatchWithResult.
// It is constructed fresh per call and never mutated after return.
type Envelope struct {
	// Success is true when every observed outcome succeeded and the
	// dispatch was not suppressed by a guard.
	Success bool

	// Results holds the per-handler outcomes, shaped by the collection
	// strategy, in table order.
	Results []Outcome

	// Execution carries mode, timing, and handler counts.
	Execution ExecutionInfo
}

// FirstValue returns the value of the first outcome, or nil if the envelope
// carries no results.
func (e *Envelope) FirstValue() any {
	if len(e.Results) == 0 {
		return nil
	}
	return e.Results[0].Value
}
