package pipeline

import (
	"sync/atomic"

	"github.com/dshills/actionpipe/pipeline/guard"
	"github.com/dshills/actionpipe/pipeline/handler"
)

// Metrics collects engine counters. All fields are updated atomically;
// Snapshot may be called concurrently with dispatches.
type Metrics struct {
	dispatches       atomic.Uint64
	suppressed       atomic.Uint64
	deferred         atomic.Uint64
	trailingRuns     atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
	totalHandlerNs   atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	// Dispatches is the total number of dispatch attempts.
	Dispatches uint64

	// Suppressed is the number of dispatches rejected or absorbed by a
	// guard.
	Suppressed uint64

	// Deferred is the subset of suppressed dispatches absorbed into a
	// pending trailing execution.
	Deferred uint64

	// TrailingRuns is the number of executions fired by guard timers.
	TrailingRuns uint64

	// HandlersExecuted is the total number of handler executions observed.
	HandlersExecuted uint64

	// HandlerErrors is the number of handlers that returned errors.
	HandlerErrors uint64

	// HandlerPanics is the number of handler panics recovered.
	HandlerPanics uint64

	// AvgHandlerTimeNs is the average handler execution time in
	// nanoseconds.
	AvgHandlerTimeNs int64
}

func (m *Metrics) recordDispatch() {
	m.dispatches.Add(1)
}

func (m *Metrics) recordSuppressed(dec guard.Decision) {
	m.suppressed.Add(1)
	if dec.Deferred {
		m.deferred.Add(1)
	}
}

func (m *Metrics) recordTrailing() {
	m.trailingRuns.Add(1)
}

func (m *Metrics) recordOutcome(out handler.Outcome) {
	m.handlersExecuted.Add(1)
	if out.Err != nil {
		m.handlerErrors.Add(1)
	}
	m.totalHandlerNs.Add(out.Duration.Nanoseconds())
}

func (m *Metrics) recordPanic() {
	m.handlerPanics.Add(1)
}

// Snapshot returns current counters.
func (m *Metrics) Snapshot() Stats {
	executed := m.handlersExecuted.Load()
	var avgNs int64
	if executed > 0 {
		avgNs = m.totalHandlerNs.Load() / int64(executed)
	}
	return Stats{
		Dispatches:       m.dispatches.Load(),
		Suppressed:       m.suppressed.Load(),
		Deferred:         m.deferred.Load(),
		TrailingRuns:     m.trailingRuns.Load(),
		HandlersExecuted: executed,
		HandlerErrors:    m.handlerErrors.Load(),
		HandlerPanics:    m.handlerPanics.Load(),
		AvgHandlerTimeNs: avgNs,
	}
}
