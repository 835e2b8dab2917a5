package pipeline

import (
	"context"
	"time"

	"github.com/dshills/actionpipe/pipeline/guard"
	"github.com/dshills/actionpipe/pipeline/handler"
)

// Engine is the action pipeline facade: a registry mapping action keys to
// ordered handler entries, guard-aware dispatch, and result collection.
type Engine struct {
	config    Config
	metrics   *Metrics
	table     *Table
	guards    *guard.Bank
	executor  *Executor
	collector *Collector
}

// New creates an engine with the given configuration.
func New(config Config) *Engine {
	e := &Engine{
		config:  config,
		metrics: NewMetrics(),
	}

	// Dropping the last handler for a key tears down the key's guard
	// state, cancelling any pending timers.
	e.table = NewTable(func(key string) {
		e.guards.Drop(key)
	})

	// Trailing executions fired by guard timers bypass the guard check.
	e.guards = guard.NewBank(func(key string, payload any) {
		e.metrics.recordTrailing()
		e.executor.Run(context.Background(), key, payload)
	})

	e.executor = NewExecutor(e.table, config.RecoverFromPanic, e.metrics)
	e.collector = NewCollector(e.executor, e.metrics)
	return e
}

// NewWithDefaults creates an engine with default configuration.
func NewWithDefaults() *Engine {
	return New(DefaultConfig())
}

// Register adds a handler for an action key and returns its disposer.
//
// The disposer is idempotent. Disposing the last handler for a key cancels
// the key's pending guard timers, so a handler never executes after its
// disposal even if a debounce timer was in flight.
//
// Guard options (WithDebounce, WithThrottle, WithBlockWhen) configure the
// key's guard spec; when several registrations configure guards for the
// same key, the most recent spec wins.
func (e *Engine) Register(key string, fn handler.Func, opts ...RegisterOption) (func(), error) {
	if key == "" {
		return nil, ErrEmptyActionKey
	}
	if fn == nil {
		return nil, ErrNilHandler
	}

	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.hasGuard {
		if err := e.ConfigureGuard(key, cfg.guardSpec); err != nil {
			return nil, err
		}
	}

	_, dispose := e.table.Insert(key, fn, cfg.priority, cfg.blocking, cfg.tags, cfg.category)
	return dispose, nil
}

// ConfigureGuard attaches a guard spec to an action key, replacing any
// previous spec. Used by registration options and by profile loading.
func (e *Engine) ConfigureGuard(key string, spec guard.Spec) error {
	if key == "" {
		return ErrEmptyActionKey
	}
	if err := spec.Validate(); err != nil {
		return &ConfigError{Option: "guard", Err: err}
	}
	if spec.Block.OnBlocked == nil {
		spec.Block.OnBlocked = e.config.OnBlocked
	}
	e.guards.Configure(key, spec)
	return nil
}

// Dispatch executes the pipeline for key, fire-and-continue. A guard
// rejection is not an error: the call returns nil and only the OnBlocked
// side effect (if configured) fires. The returned error is reserved for
// invalid options.
func (e *Engine) Dispatch(ctx context.Context, key string, payload any, opts ...CallOption) error {
	if key == "" {
		return ErrEmptyActionKey
	}
	cfg, err := newCallConfig(opts)
	if err != nil {
		return err
	}

	e.metrics.recordDispatch()

	dec := e.guards.Check(key, payload, cfg.guardOverride())
	if !dec.Allow {
		e.metrics.recordSuppressed(dec)
		return nil
	}

	e.executor.Run(ctx, key, payload)
	return nil
}

// DispatchWithResult executes the pipeline for key and returns a result
// envelope. The guard decision is resolved exactly as Dispatch would; a
// suppressed call returns an envelope with Success=false and a single
// skipped outcome, with no handler invoked. A deferred call (debounce or
// trailing throttle) still executes later, fire-and-forget.
func (e *Engine) DispatchWithResult(ctx context.Context, key string, payload any, opts ...CallOption) (*handler.Envelope, error) {
	if key == "" {
		return nil, ErrEmptyActionKey
	}
	cfg, err := newCallConfig(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	e.metrics.recordDispatch()

	dec := e.guards.Check(key, payload, cfg.guardOverride())
	if !dec.Allow {
		e.metrics.recordSuppressed(dec)
		return &handler.Envelope{
			Success: false,
			Results: []handler.Outcome{{Skipped: true, Reason: dec.Reason}},
			Execution: handler.ExecutionInfo{
				Mode:     cfg.mode.String(),
				Duration: time.Since(start),
				// Count only the handlers the call's filter would have
				// selected.
				HandlersSkipped: len(e.table.EntriesFor(key, cfg.filter)),
			},
		}, nil
	}

	entries := e.table.EntriesFor(key, cfg.filter)
	if cfg.filter != nil && cfg.filter.Payload != nil && !cfg.filter.Payload(payload) {
		entries = nil
	}
	return e.collector.Collect(ctx, key, entries, payload, cfg), nil
}

// Block manually blocks an action key until Unblock. Manual blocks take
// precedence over any configured block condition.
func (e *Engine) Block(key, reason string) {
	e.guards.Block(key, reason)
}

// Unblock clears a manual block on an action key.
func (e *Engine) Unblock(key string) {
	e.guards.Unblock(key)
}

// IsBlocked reports whether a dispatch for key would currently be rejected
// by the block gate.
func (e *Engine) IsBlocked(key string) bool {
	return e.guards.IsBlocked(key)
}

// ResetAll cancels every outstanding guard timer and clears transient guard
// state (manual blocks, throttle windows) for all keys.
func (e *Engine) ResetAll() {
	e.guards.ResetAll()
}

// EntriesFor returns a read-only snapshot of key's handler entries in
// execution order.
func (e *Engine) EntriesFor(key string) []*handler.Entry {
	return e.table.EntriesFor(key, nil)
}

// Keys returns all action keys with registered handlers.
func (e *Engine) Keys() []string {
	return e.table.Keys()
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	return e.metrics.Snapshot()
}
