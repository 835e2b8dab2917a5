package pipeline

import "github.com/dshills/actionpipe/pipeline/guard"

// Config holds engine configuration options.
type Config struct {
	// RecoverFromPanic wraps handler execution in panic recovery. A
	// recovered panic is recorded as the handler's error and the walk
	// continues.
	RecoverFromPanic bool

	// OnBlocked is the default notification for block-gate rejections on
	// keys whose guard spec does not set its own callback.
	OnBlocked guard.BlockedFunc
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecoverFromPanic: true,
	}
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}

// WithOnBlocked returns a copy of the config with the default block
// notification set.
func (c Config) WithOnBlocked(fn guard.BlockedFunc) Config {
	c.OnBlocked = fn
	return c
}
