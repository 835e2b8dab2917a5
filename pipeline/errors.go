package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrNilHandler is returned when a nil handler function is registered.
	ErrNilHandler = errors.New("pipeline: handler cannot be nil")

	// ErrEmptyActionKey is returned when an empty action key is used.
	ErrEmptyActionKey = errors.New("pipeline: action key cannot be empty")

	// ErrNoMergeFunc is returned when the merge strategy is selected
	// without a merge function.
	ErrNoMergeFunc = errors.New("pipeline: merge strategy requires a merge function")

	// ErrUnknownMode is returned for an unrecognized execution mode.
	ErrUnknownMode = errors.New("pipeline: unknown execution mode")

	// ErrUnknownStrategy is returned for an unrecognized result strategy.
	ErrUnknownStrategy = errors.New("pipeline: unknown result strategy")

	// ErrHandlerPanic indicates a handler panicked during execution.
	ErrHandlerPanic = errors.New("pipeline: handler panicked")
)

// ConfigError reports an invalid option at register or dispatch time.
// It is raised synchronously to the caller, never swallowed.
type ConfigError struct {
	// Option names the offending option.
	Option string

	// Err is the underlying validation error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline: invalid option %s: %v", e.Option, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PanicError wraps a recovered handler panic as an error.
type PanicError struct {
	// ActionKey is the action being dispatched when the panic occurred.
	ActionKey string

	// HandlerID identifies the handler that panicked.
	HandlerID string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeline: handler %s panicked for action %s: %v", e.HandlerID, e.ActionKey, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
