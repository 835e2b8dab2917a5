package guard

import (
	"sync"
	"time"
)

// Runner executes a deferred (trailing) dispatch for a key. The bank calls
// it from timer goroutines after a debounce delay or throttle window
// elapses; the runner must not re-enter the guard check.
type Runner func(actionKey string, payload any)

// Bank owns the mutable guard state for every action key.
//
// State is created lazily on the first guarded dispatch, manual block, or
// Configure call for a key, and dropped when the last handler for the key
// is unregistered.
type Bank struct {
	mu     sync.RWMutex
	states map[string]*state
	runner Runner
	now    func() time.Time
}

// state is the per-key guard state. Its mutex is the single
// mutual-exclusion domain for the key; cross-key dispatches never contend.
type state struct {
	mu   sync.Mutex
	spec Spec

	lastInvoked time.Time

	debounceTimer   *time.Timer
	debouncePayload any

	trailingTimer   *time.Timer
	trailingPayload any

	manualBlock  bool
	manualReason string
}

// NewBank creates a bank that executes deferred dispatches via runner.
func NewBank(runner Runner) *Bank {
	return &Bank{
		states: make(map[string]*state),
		runner: runner,
		now:    time.Now,
	}
}

// Configure attaches a guard spec to a key, replacing any previous spec.
// Pending timers from the previous spec keep running.
func (b *Bank) Configure(key string, spec Spec) {
	st := b.ensure(key)
	st.mu.Lock()
	st.spec = spec
	st.mu.Unlock()
}

// SpecFor returns the configured spec for a key.
func (b *Bank) SpecFor(key string) (Spec, bool) {
	st := b.lookup(key)
	if st == nil {
		return Spec{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.spec, true
}

// Check decides whether a dispatch for key may proceed. A non-nil override
// replaces the key's configured spec for this call only.
//
// Configured checks are evaluated in the fixed order Block, Throttle,
// Debounce; the first rejection short-circuits the rest.
func (b *Bank) Check(key string, payload any, override *Spec) Decision {
	st := b.lookup(key)
	if st == nil {
		if override == nil || override.Zero() {
			return Allowed()
		}
		st = b.ensure(key)
	}

	st.mu.Lock()
	spec := st.spec
	if override != nil {
		spec = *override
	}
	dec, notify := b.checkLocked(st, key, payload, spec)
	st.mu.Unlock()

	if notify != nil {
		notify()
	}
	return dec
}

// checkLocked evaluates the guard chain with st.mu held. The returned
// notify closure, if any, must be called after the lock is released.
func (b *Bank) checkLocked(st *state, key string, payload any, spec Spec) (Decision, func()) {
	// Block: manual block takes precedence over the live predicate.
	if st.manualBlock {
		reason := st.manualReason
		if reason == "" {
			reason = ReasonBlocked
		}
		return Decision{Reason: reason}, blockNotify(spec, key, payload, reason)
	}
	if spec.Block.Condition != nil && spec.Block.Condition() {
		return Decision{Reason: ReasonBlocked}, blockNotify(spec, key, payload, ReasonBlocked)
	}

	// Throttle.
	if spec.Throttle.Interval > 0 {
		dec, done := b.throttleLocked(st, key, payload, spec.Throttle)
		if done {
			return dec, nil
		}
	}

	// Debounce: every call defers; only the last payload survives.
	if spec.Debounce > 0 {
		if st.debounceTimer != nil {
			st.debounceTimer.Stop()
		}
		st.debouncePayload = payload
		st.debounceTimer = time.AfterFunc(spec.Debounce, func() {
			b.fireDebounce(key)
		})
		return Decision{Deferred: true, Reason: ReasonDebounced}, nil
	}

	return Allowed(), nil
}

// throttleLocked applies the throttle window. done is false when the call
// passed the window and evaluation should continue with the next check.
func (b *Bank) throttleLocked(st *state, key string, payload any, ts ThrottleSpec) (Decision, bool) {
	now := b.now()

	if st.lastInvoked.IsZero() || now.Sub(st.lastInvoked) >= ts.Interval {
		// Open window.
		st.lastInvoked = now
		if ts.Leading {
			return Decision{}, false
		}
		if ts.Trailing {
			st.trailingPayload = payload
			b.scheduleTrailingLocked(st, key, ts.Interval)
			return Decision{Deferred: true, Reason: ReasonThrottled}, true
		}
		return Decision{Reason: ReasonThrottled}, true
	}

	// Inside the window.
	if ts.Trailing {
		st.trailingPayload = payload
		if st.trailingTimer == nil {
			remaining := st.lastInvoked.Add(ts.Interval).Sub(now)
			b.scheduleTrailingLocked(st, key, remaining)
		}
		return Decision{Deferred: true, Reason: ReasonThrottled}, true
	}
	return Decision{Reason: ReasonThrottled}, true
}

func (b *Bank) scheduleTrailingLocked(st *state, key string, delay time.Duration) {
	if st.trailingTimer != nil {
		st.trailingTimer.Stop()
	}
	st.trailingTimer = time.AfterFunc(delay, func() {
		b.fireTrailing(key)
	})
}

// fireDebounce runs the pipeline for the most recent debounced payload.
// A cancelled timer (Drop, ResetAll, or a newer call) is detected by the
// nil timer field and fires nothing.
func (b *Bank) fireDebounce(key string) {
	st := b.lookup(key)
	if st == nil {
		return
	}
	st.mu.Lock()
	if st.debounceTimer == nil {
		st.mu.Unlock()
		return
	}
	st.debounceTimer = nil
	payload := st.debouncePayload
	st.debouncePayload = nil
	st.mu.Unlock()

	b.runner(key, payload)
}

// fireTrailing runs the throttle catch-up execution and opens a new window.
func (b *Bank) fireTrailing(key string) {
	st := b.lookup(key)
	if st == nil {
		return
	}
	st.mu.Lock()
	if st.trailingTimer == nil {
		st.mu.Unlock()
		return
	}
	st.trailingTimer = nil
	payload := st.trailingPayload
	st.trailingPayload = nil
	st.lastInvoked = b.now()
	st.mu.Unlock()

	b.runner(key, payload)
}

// Block manually blocks a key. Manual blocks take precedence over a
// configured block condition until Unblock is called.
func (b *Bank) Block(key, reason string) {
	st := b.ensure(key)
	st.mu.Lock()
	st.manualBlock = true
	st.manualReason = reason
	st.mu.Unlock()
}

// Unblock clears a manual block. The configured block condition, if any,
// still applies.
func (b *Bank) Unblock(key string) {
	st := b.lookup(key)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.manualBlock = false
	st.manualReason = ""
	st.mu.Unlock()
}

// IsBlocked reports whether a dispatch for key would be rejected by the
// block gate right now.
func (b *Bank) IsBlocked(key string) bool {
	st := b.lookup(key)
	if st == nil {
		return false
	}
	st.mu.Lock()
	manual := st.manualBlock
	cond := st.spec.Block.Condition
	st.mu.Unlock()

	if manual {
		return true
	}
	return cond != nil && cond()
}

// Drop removes a key's guard state and cancels its outstanding timers.
// Called when the last handler for the key is unregistered.
func (b *Bank) Drop(key string) {
	b.mu.Lock()
	st := b.states[key]
	delete(b.states, key)
	b.mu.Unlock()

	if st != nil {
		st.mu.Lock()
		cancelTimersLocked(st)
		st.mu.Unlock()
	}
}

// ResetAll cancels every outstanding timer and clears transient state
// (manual blocks, throttle windows, pending payloads) for all keys.
// Configured specs survive.
func (b *Bank) ResetAll() {
	b.mu.RLock()
	states := make([]*state, 0, len(b.states))
	for _, st := range b.states {
		states = append(states, st)
	}
	b.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		cancelTimersLocked(st)
		st.lastInvoked = time.Time{}
		st.manualBlock = false
		st.manualReason = ""
		st.mu.Unlock()
	}
}

func cancelTimersLocked(st *state) {
	if st.debounceTimer != nil {
		st.debounceTimer.Stop()
		st.debounceTimer = nil
		st.debouncePayload = nil
	}
	if st.trailingTimer != nil {
		st.trailingTimer.Stop()
		st.trailingTimer = nil
		st.trailingPayload = nil
	}
}

func (b *Bank) lookup(key string) *state {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.states[key]
}

func (b *Bank) ensure(key string) *state {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.states[key]
	if st == nil {
		st = &state{}
		b.states[key] = st
	}
	return st
}

func blockNotify(spec Spec, key string, payload any, reason string) func() {
	fn := spec.Block.OnBlocked
	if fn == nil {
		return nil
	}
	return func() { fn(key, payload, reason) }
}
