package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/dshills/actionpipe/pipeline/handler"
)

// Executor walks a key's handler entries for one dispatch, honoring the
// continuation rules:
//
//   - blocking entries are awaited, then the walk continues unless the
//     handler called Stop
//   - non-blocking entries are fired without awaiting; the walk continues
//     the moment the handler calls Next, and halts if the handler returns
//     without a verdict
type Executor struct {
	table         *Table
	recoverPanics bool
	metrics       *Metrics
}

// NewExecutor creates an executor over the given table.
func NewExecutor(table *Table, recoverPanics bool, metrics *Metrics) *Executor {
	return &Executor{
		table:         table,
		recoverPanics: recoverPanics,
		metrics:       metrics,
	}
}

// Run executes the full pipeline for key with no result collection.
// Used by plain Dispatch and by guard trailing executions.
func (e *Executor) Run(ctx context.Context, key string, payload any) {
	entries := e.table.EntriesFor(key, nil)
	e.walk(ctx, key, entries, payload, false, nil)
}

// walk executes entries in table order. When await is true every handler is
// awaited regardless of its Blocking flag (result collection observes all
// settlements). record, if non-nil, receives each observed outcome.
//
// Returns the number of observed executions and whether the walk halted
// before the last entry.
func (e *Executor) walk(ctx context.Context, key string, entries []*handler.Entry, payload any, await bool, record func(handler.Outcome)) (executed int, halted bool) {
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return executed, true
		default:
		}

		ctl := handler.NewController()

		if entry.Blocking || await {
			out := e.invoke(ctx, key, entry, payload, ctl)
			executed++
			e.metrics.recordOutcome(out)
			if record != nil {
				record(out)
			}
			// Handler failure is non-fatal; only an explicit verdict or a
			// non-blocking handler without one stops the walk.
			if ctl.Verdict() == handler.VerdictStop {
				return executed, true
			}
			if !entry.Blocking && ctl.Verdict() != handler.VerdictContinue {
				return executed, true
			}
			continue
		}

		// Fire without awaiting. The walk resumes as soon as the handler
		// calls Next; a return without a verdict halts it.
		done := make(chan handler.Outcome, 1)
		go func(entry *handler.Entry) {
			done <- e.invoke(ctx, key, entry, payload, ctl)
		}(entry)

		select {
		case <-ctl.Decided():
			executed++
			go e.settle(done)
			if ctl.Verdict() == handler.VerdictStop {
				return executed, true
			}
		case out := <-done:
			executed++
			e.metrics.recordOutcome(out)
			// The handler may have decided just before returning.
			if ctl.Verdict() != handler.VerdictContinue {
				return executed, true
			}
		}
	}
	return executed, false
}

// settle records the eventual outcome of a detached non-blocking handler.
func (e *Executor) settle(done <-chan handler.Outcome) {
	e.metrics.recordOutcome(<-done)
}

// invoke executes a single handler, timing it and optionally recovering
// panics into the outcome's error.
func (e *Executor) invoke(ctx context.Context, key string, entry *handler.Entry, payload any, ctl *handler.Controller) handler.Outcome {
	start := time.Now()
	out := handler.Outcome{HandlerID: entry.ID}

	if e.recoverPanics {
		func() {
			defer func() {
				if r := recover(); r != nil {
					stack := make([]byte, 4096)
					n := runtime.Stack(stack, false)
					out.Err = &PanicError{
						ActionKey: key,
						HandlerID: entry.ID,
						Value:     r,
						Stack:     string(stack[:n]),
					}
					e.metrics.recordPanic()
				}
			}()
			out.Value, out.Err = entry.Fn(ctx, payload, ctl)
		}()
	} else {
		out.Value, out.Err = entry.Fn(ctx, payload, ctl)
	}

	out.Duration = time.Since(start)
	return out
}
