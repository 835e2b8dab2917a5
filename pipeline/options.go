package pipeline

import (
	"time"

	"github.com/dshills/actionpipe/pipeline/guard"
	"github.com/dshills/actionpipe/pipeline/handler"
)

// registerConfig collects per-registration settings.
type registerConfig struct {
	priority int
	blocking bool
	tags     []string
	category string

	guardSpec guard.Spec
	hasGuard  bool
}

// RegisterOption configures a handler registration.
type RegisterOption func(*registerConfig)

// WithPriority sets the handler priority. Higher values execute earlier;
// handlers with equal priority execute in registration order. Zero is
// neutral.
func WithPriority(priority int) RegisterOption {
	return func(c *registerConfig) {
		c.priority = priority
	}
}

// WithBlocking marks the handler as blocking: the pipeline awaits its
// completion before moving to the next entry.
func WithBlocking() RegisterOption {
	return func(c *registerConfig) {
		c.blocking = true
	}
}

// WithTags attaches tags used by result-collection filters.
func WithTags(tags ...string) RegisterOption {
	return func(c *registerConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// WithCategory attaches a category label used by result-collection filters.
func WithCategory(category string) RegisterOption {
	return func(c *registerConfig) {
		c.category = category
	}
}

// WithDebounce attaches a debounce guard to the action key. Calls within
// the delay collapse into one execution with the most recent payload.
// The spec replaces any guard previously configured for the key.
func WithDebounce(delay time.Duration) RegisterOption {
	return func(c *registerConfig) {
		c.guardSpec.Debounce = delay
		c.hasGuard = true
	}
}

// WithThrottle attaches a throttle guard to the action key: at most one
// execution per interval, with optional leading and trailing calls.
func WithThrottle(interval time.Duration, leading, trailing bool) RegisterOption {
	return func(c *registerConfig) {
		c.guardSpec.Throttle = guard.ThrottleSpec{
			Interval: interval,
			Leading:  leading,
			Trailing: trailing,
		}
		c.hasGuard = true
	}
}

// WithBlockWhen attaches a block gate to the action key. While the
// condition returns true, dispatches are rejected and no handler runs.
func WithBlockWhen(condition func() bool) RegisterOption {
	return func(c *registerConfig) {
		c.guardSpec.Block.Condition = condition
		c.hasGuard = true
	}
}

// WithOnBlocked sets the notification fired when the key's block gate
// rejects a dispatch.
func WithOnBlocked(fn guard.BlockedFunc) RegisterOption {
	return func(c *registerConfig) {
		c.guardSpec.Block.OnBlocked = fn
		c.hasGuard = true
	}
}

// callConfig collects per-dispatch settings. Plain Dispatch uses only the
// guard override; DispatchWithResult additionally uses filter, mode, and
// strategy.
type callConfig struct {
	override *guard.Spec

	filter   *handler.Filter
	mode     Mode
	strategy Strategy
	merge    MergeFunc
}

// CallOption configures a single dispatch.
type CallOption func(*callConfig)

func newCallConfig(opts []CallOption) (*callConfig, error) {
	cfg := &callConfig{
		mode:     ModeSequential,
		strategy: StrategyAll,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.override != nil {
		if err := cfg.override.Validate(); err != nil {
			return nil, &ConfigError{Option: "guard override", Err: err}
		}
	}
	if !cfg.mode.valid() {
		return nil, &ConfigError{Option: "mode", Err: ErrUnknownMode}
	}
	if !cfg.strategy.valid() {
		return nil, &ConfigError{Option: "strategy", Err: ErrUnknownStrategy}
	}
	if cfg.strategy == StrategyMerge && cfg.merge == nil {
		return nil, &ConfigError{Option: "strategy", Err: ErrNoMergeFunc}
	}
	return cfg, nil
}

func (c *callConfig) guardOverride() *guard.Spec {
	return c.override
}

func (c *callConfig) ensureOverride() *guard.Spec {
	if c.override == nil {
		c.override = &guard.Spec{}
	}
	return c.override
}

// CallDebounce overrides the key's guard with a debounce delay for this
// call only.
func CallDebounce(delay time.Duration) CallOption {
	return func(c *callConfig) {
		c.ensureOverride().Debounce = delay
	}
}

// CallThrottle overrides the key's guard with a throttle window for this
// call only.
func CallThrottle(interval time.Duration, leading, trailing bool) CallOption {
	return func(c *callConfig) {
		c.ensureOverride().Throttle = guard.ThrottleSpec{
			Interval: interval,
			Leading:  leading,
			Trailing: trailing,
		}
	}
}

// CallBlockWhen overrides the key's guard with a block condition for this
// call only. A manual block on the key still takes precedence.
func CallBlockWhen(condition func() bool) CallOption {
	return func(c *callConfig) {
		c.ensureOverride().Block.Condition = condition
	}
}

// CallOnBlocked sets the block notification for this call's guard override.
func CallOnBlocked(fn guard.BlockedFunc) CallOption {
	return func(c *callConfig) {
		c.ensureOverride().Block.OnBlocked = fn
	}
}

// WithMode selects the execution mode for DispatchWithResult.
func WithMode(mode Mode) CallOption {
	return func(c *callConfig) {
		c.mode = mode
	}
}

// WithStrategy selects the result-shaping strategy for DispatchWithResult.
func WithStrategy(strategy Strategy) CallOption {
	return func(c *callConfig) {
		c.strategy = strategy
	}
}

// WithMergeStrategy selects the merge strategy with the given fold.
func WithMergeStrategy(fn MergeFunc) CallOption {
	return func(c *callConfig) {
		c.strategy = StrategyMerge
		c.merge = fn
	}
}

// WithFilterTags selects only handlers carrying at least one of the tags.
func WithFilterTags(tags ...string) CallOption {
	return func(c *callConfig) {
		c.ensureFilter().Tags = append(c.filter.Tags, tags...)
	}
}

// WithFilterCategory selects only handlers with the given category.
func WithFilterCategory(category string) CallOption {
	return func(c *callConfig) {
		c.ensureFilter().Category = category
	}
}

// WithPayloadFilter selects handlers only when the predicate accepts the
// dispatch payload; a rejected payload selects no handlers.
func WithPayloadFilter(pred func(payload any) bool) CallOption {
	return func(c *callConfig) {
		c.ensureFilter().Payload = pred
	}
}

func (c *callConfig) ensureFilter() *handler.Filter {
	if c.filter == nil {
		c.filter = &handler.Filter{}
	}
	return c.filter
}
