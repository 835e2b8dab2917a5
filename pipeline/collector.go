package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/actionpipe/pipeline/handler"
)

// Mode selects how DispatchWithResult executes the selected handlers.
type Mode int

const (
	// ModeSequential runs handlers one at a time in table order.
	ModeSequential Mode = iota

	// ModeParallel runs all handlers concurrently and awaits every
	// settlement; outcomes keep table order regardless of completion order.
	ModeParallel

	// ModeRace runs all handlers concurrently and resolves on the first
	// settlement; the rest are detached.
	ModeRace
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeParallel:
		return "parallel"
	case ModeRace:
		return "race"
	default:
		return "unknown"
	}
}

func (m Mode) valid() bool {
	return m >= ModeSequential && m <= ModeRace
}

// Strategy shapes the envelope's result list.
type Strategy int

const (
	// StrategyAll keeps every observed outcome in table order.
	StrategyAll Strategy = iota

	// StrategyFirst keeps only the first outcome.
	StrategyFirst

	// StrategyLast keeps only the last outcome.
	StrategyLast

	// StrategyMerge folds all outcomes through a MergeFunc into one
	// synthetic outcome.
	StrategyMerge
)

// String returns a human-readable strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyAll:
		return "all"
	case StrategyFirst:
		return "first"
	case StrategyLast:
		return "last"
	case StrategyMerge:
		return "merge"
	default:
		return "unknown"
	}
}

func (s Strategy) valid() bool {
	return s >= StrategyAll && s <= StrategyMerge
}

// MergeFunc folds the observed outcomes into a single value.
type MergeFunc func(outcomes []handler.Outcome) (any, error)

// Collector executes a filtered entry snapshot under an execution mode and
// shapes the outcomes per strategy.
type Collector struct {
	executor *Executor
	metrics  *Metrics
}

// NewCollector creates a collector over the given executor.
func NewCollector(executor *Executor, metrics *Metrics) *Collector {
	return &Collector{executor: executor, metrics: metrics}
}

// Collect runs the selected entries and builds the result envelope.
func (c *Collector) Collect(ctx context.Context, key string, entries []*handler.Entry, payload any, cfg *callConfig) *handler.Envelope {
	start := time.Now()

	var outcomes []handler.Outcome
	var executed, skipped int

	switch cfg.mode {
	case ModeParallel:
		outcomes = c.runParallel(ctx, key, entries, payload)
		executed = len(outcomes)
	case ModeRace:
		outcomes, skipped = c.runRace(ctx, key, entries, payload)
		executed = len(outcomes)
	default:
		outcomes, executed = c.runSequential(ctx, key, entries, payload)
		skipped = len(entries) - executed
	}

	success := true
	for _, out := range outcomes {
		if out.Failed() {
			success = false
			break
		}
	}

	shaped, err := shapeResults(outcomes, cfg)
	if err != nil {
		success = false
	}

	return &handler.Envelope{
		Success: success,
		Results: shaped,
		Execution: handler.ExecutionInfo{
			Mode:             cfg.mode.String(),
			Duration:         time.Since(start),
			HandlersExecuted: executed,
			HandlersSkipped:  skipped,
		},
	}
}

// runSequential awaits each handler in table order, honoring the
// continuation rules from the executor walk.
func (c *Collector) runSequential(ctx context.Context, key string, entries []*handler.Entry, payload any) ([]handler.Outcome, int) {
	outcomes := make([]handler.Outcome, 0, len(entries))
	executed, _ := c.executor.walk(ctx, key, entries, payload, true, func(out handler.Outcome) {
		outcomes = append(outcomes, out)
	})
	return outcomes, executed
}

// runParallel invokes all entries concurrently and awaits every settlement.
// Outcomes are indexed by table position, so completion order never changes
// result order.
func (c *Collector) runParallel(ctx context.Context, key string, entries []*handler.Entry, payload any) []handler.Outcome {
	outcomes := make([]handler.Outcome, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry *handler.Entry) {
			defer wg.Done()
			outcomes[i] = c.executor.invoke(ctx, key, entry, payload, handler.NewController())
		}(i, entry)
	}
	wg.Wait()

	for _, out := range outcomes {
		c.metrics.recordOutcome(out)
	}
	return outcomes
}

// runRace invokes all entries concurrently and resolves on the first
// settlement. Settlements already observed at that moment are kept; the
// rest are detached and recorded only in metrics.
func (c *Collector) runRace(ctx context.Context, key string, entries []*handler.Entry, payload any) ([]handler.Outcome, int) {
	if len(entries) == 0 {
		return nil, 0
	}

	settled := make(chan handler.Outcome, len(entries))
	for _, entry := range entries {
		go func(entry *handler.Entry) {
			settled <- c.executor.invoke(ctx, key, entry, payload, handler.NewController())
		}(entry)
	}

	outcomes := []handler.Outcome{<-settled}
drain:
	for len(outcomes) < len(entries) {
		select {
		case out := <-settled:
			outcomes = append(outcomes, out)
		default:
			break drain
		}
	}
	for _, out := range outcomes {
		c.metrics.recordOutcome(out)
	}

	// Detach the losers; their settlements still count in metrics.
	remaining := len(entries) - len(outcomes)
	if remaining > 0 {
		go func(n int) {
			for i := 0; i < n; i++ {
				c.metrics.recordOutcome(<-settled)
			}
		}(remaining)
	}
	return outcomes, remaining
}

// shapeResults applies the collection strategy to the observed outcomes.
func shapeResults(outcomes []handler.Outcome, cfg *callConfig) ([]handler.Outcome, error) {
	if len(outcomes) == 0 {
		return nil, nil
	}

	switch cfg.strategy {
	case StrategyFirst:
		return outcomes[:1], nil
	case StrategyLast:
		return outcomes[len(outcomes)-1:], nil
	case StrategyMerge:
		value, err := cfg.merge(outcomes)
		return []handler.Outcome{{Value: value, Err: err}}, err
	default:
		return outcomes, nil
	}
}
