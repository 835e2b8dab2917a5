package guard

import (
	"errors"
	"time"
)

// Rejection reasons reported in Decision and passed to OnBlocked callbacks.
const (
	ReasonBlocked   = "blocked"
	ReasonThrottled = "throttled"
	ReasonDebounced = "debounced"
)

// Guard configuration errors.
var (
	// ErrNegativeDebounce indicates a debounce delay below zero.
	ErrNegativeDebounce = errors.New("guard: debounce delay must not be negative")

	// ErrNegativeInterval indicates a throttle interval below zero.
	ErrNegativeInterval = errors.New("guard: throttle interval must not be negative")
)

// BlockedFunc is notified when a block gate rejects a dispatch.
// It runs outside the bank's locks; it may dispatch.
type BlockedFunc func(actionKey string, payload any, reason string)

// ThrottleSpec configures a throttle window for a key.
type ThrottleSpec struct {
	// Interval is the minimum spacing between executions. Zero disables
	// throttling.
	Interval time.Duration

	// Leading allows the first call in an open window to run immediately.
	Leading bool

	// Trailing schedules one catch-up execution at the end of the window
	// using the most recent payload.
	Trailing bool
}

// BlockSpec configures a conditional block gate for a key.
type BlockSpec struct {
	// Condition is evaluated synchronously at dispatch time; a true result
	// rejects the dispatch. Nil means no conditional gate.
	Condition func() bool

	// OnBlocked fires as a side-effect notification when the gate rejects.
	OnBlocked BlockedFunc
}

// Spec is the full guard configuration for one action key.
// The zero value leaves the key unguarded.
type Spec struct {
	// Debounce collapses bursts: N calls within any sliding window smaller
	// than the delay execute exactly once, with the last payload, the delay
	// after the last call. Zero disables debouncing.
	Debounce time.Duration

	Throttle ThrottleSpec
	Block    BlockSpec
}

// Zero returns true if the spec configures no checks.
func (s Spec) Zero() bool {
	return s.Debounce == 0 &&
		s.Throttle.Interval == 0 &&
		s.Block.Condition == nil
}

// Validate checks the spec for invalid values.
func (s Spec) Validate() error {
	if s.Debounce < 0 {
		return ErrNegativeDebounce
	}
	if s.Throttle.Interval < 0 {
		return ErrNegativeInterval
	}
	return nil
}

// Decision is the outcome of a guard check for one dispatch attempt.
type Decision struct {
	// Allow is true when handlers may run immediately.
	Allow bool

	// Deferred is true when the dispatch was absorbed into a pending
	// trailing execution (debounce, or throttle with trailing enabled).
	Deferred bool

	// Reason names the check that suppressed the call; empty when allowed.
	Reason string
}

// Allowed is the decision for an unguarded or passing dispatch.
func Allowed() Decision {
	return Decision{Allow: true}
}
