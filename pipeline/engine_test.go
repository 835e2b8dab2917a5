package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/actionpipe/pipeline/guard"
	"github.com/dshills/actionpipe/pipeline/handler"
)

// callLog records handler invocations across goroutines.
type callLog struct {
	mu       sync.Mutex
	payloads []any
}

func (l *callLog) record(payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payloads = append(l.payloads, payload)
}

func (l *callLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payloads)
}

func (l *callLog) all() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]any, len(l.payloads))
	copy(out, l.payloads)
	return out
}

func (l *callLog) handler() handler.Func {
	return func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
		l.record(payload)
		return payload, nil
	}
}

func TestEngine_RegisterValidation(t *testing.T) {
	eng := NewWithDefaults()

	_, err := eng.Register("", (&callLog{}).handler())
	assert.ErrorIs(t, err, ErrEmptyActionKey)

	_, err = eng.Register("key", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestEngine_DispatchPriorityOrder(t *testing.T) {
	eng := NewWithDefaults()

	var mu sync.Mutex
	var order []int
	appender := func(p int) handler.Func {
		return func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			return nil, nil
		}
	}

	_, err := eng.Register("save", appender(200), WithPriority(200), WithBlocking())
	require.NoError(t, err)
	_, err = eng.Register("save", appender(300), WithPriority(300), WithBlocking())
	require.NoError(t, err)
	_, err = eng.Register("save", appender(250), WithPriority(250), WithBlocking())
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(context.Background(), "save", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{300, 250, 200}, order)
}

func TestEngine_UnregisterIdempotent(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	dispose, err := eng.Register("key", log.handler(), WithBlocking())
	require.NoError(t, err)

	dispose()
	dispose()

	require.NoError(t, eng.Dispatch(context.Background(), "key", nil))
	assert.Zero(t, log.count())
	assert.Empty(t, eng.Keys())
}

func TestEngine_DisposeCancelsPendingDebounce(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	dispose, err := eng.Register("search", log.handler(),
		WithBlocking(), WithDebounce(40*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(context.Background(), "search", "query"))
	dispose()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, log.count(), "a disposed handler must never run from a pending timer")
}

func TestEngine_DebounceCollapse(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	_, err := eng.Register("search", log.handler(),
		WithBlocking(), WithDebounce(60*time.Millisecond))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, eng.Dispatch(context.Background(), "search", i))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return log.count() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []any{5}, log.all())

	stats := eng.Stats()
	assert.Equal(t, uint64(5), stats.Dispatches)
	assert.Equal(t, uint64(5), stats.Deferred)
	assert.Equal(t, uint64(1), stats.TrailingRuns)
}

func TestEngine_ThrottleWindow(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	_, err := eng.Register("scroll", log.handler(),
		WithBlocking(), WithThrottle(80*time.Millisecond, true, true))
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(context.Background(), "scroll", 1)) // leading
	require.NoError(t, eng.Dispatch(context.Background(), "scroll", 2))
	require.NoError(t, eng.Dispatch(context.Background(), "scroll", 3))

	assert.Equal(t, []any{1}, log.all(), "only the leading call runs inside the window")

	require.Eventually(t, func() bool {
		return log.count() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []any{1, 3}, log.all(), "trailing run carries the most recent payload")
}

func TestEngine_ThrottleBurstBound(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	_, err := eng.Register("scroll", log.handler(),
		WithBlocking(), WithThrottle(100*time.Millisecond, true, true))
	require.NoError(t, err)

	// 10 calls spread over ~250ms span several windows. At most one
	// execution per window: the leading call plus one trailing call per
	// elapsed window, never more than ceil(250/100)+1 total.
	for i := 1; i <= 10; i++ {
		require.NoError(t, eng.Dispatch(context.Background(), "scroll", i))
		time.Sleep(25 * time.Millisecond)
	}

	// Let the last trailing window drain.
	time.Sleep(250 * time.Millisecond)

	got := log.count()
	assert.GreaterOrEqual(t, got, 2, "leading call plus at least one trailing run")
	assert.LessOrEqual(t, got, 4, "never more than one execution per window")
}

func TestEngine_BlockedEnvelopeCountsFilteredSelection(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	_, err := eng.Register("notify", log.handler(), WithTags("audit"))
	require.NoError(t, err)
	_, err = eng.Register("notify", log.handler())
	require.NoError(t, err)
	_, err = eng.Register("notify", log.handler())
	require.NoError(t, err)

	eng.Block("notify", "closed")

	// The skip count reflects the call's filter, not the whole bucket.
	env, err := eng.DispatchWithResult(context.Background(), "notify", nil,
		WithFilterTags("audit"))
	require.NoError(t, err)
	assert.False(t, env.Success)
	assert.Equal(t, 1, env.Execution.HandlersSkipped)

	env, err = eng.DispatchWithResult(context.Background(), "notify", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, env.Execution.HandlersSkipped)
}

func TestEngine_BlockGate(t *testing.T) {
	var mu sync.Mutex
	var blockedKeys []string

	eng := New(DefaultConfig().WithOnBlocked(func(key string, payload any, reason string) {
		mu.Lock()
		blockedKeys = append(blockedKeys, key)
		mu.Unlock()
	}))
	log := &callLog{}

	gate := true
	_, err := eng.Register("submit", log.handler(),
		WithBlocking(), WithBlockWhen(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return gate
		}))
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(context.Background(), "submit", "form"))
	assert.Zero(t, log.count())
	assert.True(t, eng.IsBlocked("submit"))

	mu.Lock()
	assert.Equal(t, []string{"submit"}, blockedKeys)
	gate = false
	mu.Unlock()

	require.NoError(t, eng.Dispatch(context.Background(), "submit", "form"))
	assert.Equal(t, 1, log.count())
}

func TestEngine_ManualBlockAndReset(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}
	_, err := eng.Register("deploy", log.handler(), WithBlocking())
	require.NoError(t, err)

	eng.Block("deploy", "maintenance window")
	require.NoError(t, eng.Dispatch(context.Background(), "deploy", nil))
	assert.Zero(t, log.count())
	assert.True(t, eng.IsBlocked("deploy"))

	env, err := eng.DispatchWithResult(context.Background(), "deploy", nil)
	require.NoError(t, err)
	assert.False(t, env.Success)
	require.Len(t, env.Results, 1)
	assert.True(t, env.Results[0].Skipped)
	assert.Equal(t, "maintenance window", env.Results[0].Reason)
	assert.Equal(t, 1, env.Execution.HandlersSkipped)

	eng.ResetAll()
	assert.False(t, eng.IsBlocked("deploy"))
	require.NoError(t, eng.Dispatch(context.Background(), "deploy", nil))
	assert.Equal(t, 1, log.count())
}

func TestEngine_DispatchWithResultStrategies(t *testing.T) {
	eng := NewWithDefaults()

	register := func(v int, priority int) {
		_, err := eng.Register("calc", func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
			return v, nil
		}, WithPriority(priority), WithBlocking())
		require.NoError(t, err)
	}
	register(1, 30)
	register(2, 20)
	register(3, 10)

	env, err := eng.DispatchWithResult(context.Background(), "calc", nil)
	require.NoError(t, err)
	require.Len(t, env.Results, 3)
	assert.Equal(t, 1, env.Results[0].Value)
	assert.Equal(t, 3, env.Results[2].Value)

	env, err = eng.DispatchWithResult(context.Background(), "calc", nil, WithStrategy(StrategyFirst))
	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, 1, env.FirstValue())

	env, err = eng.DispatchWithResult(context.Background(), "calc", nil, WithStrategy(StrategyLast))
	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, 3, env.FirstValue())

	env, err = eng.DispatchWithResult(context.Background(), "calc", nil,
		WithMergeStrategy(func(outcomes []handler.Outcome) (any, error) {
			total := 0
			for _, out := range outcomes {
				total += out.Value.(int)
			}
			return total, nil
		}))
	require.NoError(t, err)
	assert.Equal(t, 6, env.FirstValue())
}

func TestEngine_DispatchWithResultRace(t *testing.T) {
	eng := NewWithDefaults()

	slow := func(v string, delay time.Duration) handler.Func {
		return func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
			time.Sleep(delay)
			return v, nil
		}
	}
	_, err := eng.Register("lookup", slow("slow", 100*time.Millisecond), WithPriority(10))
	require.NoError(t, err)
	_, err = eng.Register("lookup", slow("fast", 10*time.Millisecond))
	require.NoError(t, err)

	env, err := eng.DispatchWithResult(context.Background(), "lookup", nil,
		WithMode(ModeRace), WithStrategy(StrategyFirst))
	require.NoError(t, err)
	require.True(t, env.Success)
	assert.Equal(t, "fast", env.FirstValue())
}

func TestEngine_DispatchWithResultFilters(t *testing.T) {
	eng := NewWithDefaults()

	register := func(v string, opts ...RegisterOption) {
		_, err := eng.Register("notify", func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
			return v, nil
		}, append(opts, WithBlocking())...)
		require.NoError(t, err)
	}
	register("audited", WithTags("audit"))
	register("billed", WithCategory("billing"))

	env, err := eng.DispatchWithResult(context.Background(), "notify", nil, WithFilterTags("audit"))
	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "audited", env.FirstValue())

	env, err = eng.DispatchWithResult(context.Background(), "notify", nil, WithFilterCategory("billing"))
	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "billed", env.FirstValue())

	// A rejecting payload filter selects no handlers.
	env, err = eng.DispatchWithResult(context.Background(), "notify", nil,
		WithPayloadFilter(func(any) bool { return false }))
	require.NoError(t, err)
	assert.Empty(t, env.Results)
	assert.Zero(t, env.Execution.HandlersExecuted)
}

func TestEngine_CallGuardOverride(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}
	_, err := eng.Register("key", log.handler(), WithBlocking())
	require.NoError(t, err)

	// The per-call debounce defers even though the key has no guard.
	require.NoError(t, eng.Dispatch(context.Background(), "key", "v", CallDebounce(30*time.Millisecond)))
	assert.Zero(t, log.count())

	require.Eventually(t, func() bool {
		return log.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_InvalidOptions(t *testing.T) {
	eng := NewWithDefaults()

	err := eng.Dispatch(context.Background(), "key", nil, CallDebounce(-time.Second))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, guard.ErrNegativeDebounce)

	_, err = eng.DispatchWithResult(context.Background(), "key", nil, WithMode(Mode(99)))
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = eng.DispatchWithResult(context.Background(), "key", nil, WithStrategy(Strategy(99)))
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = eng.DispatchWithResult(context.Background(), "key", nil, WithStrategy(StrategyMerge))
	assert.ErrorIs(t, err, ErrNoMergeFunc)

	err = eng.Dispatch(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyActionKey)
}

func TestEngine_Stats(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}
	_, err := eng.Register("key", log.handler(), WithBlocking())
	require.NoError(t, err)

	require.NoError(t, eng.Dispatch(context.Background(), "key", nil))
	eng.Block("key", "closed")
	require.NoError(t, eng.Dispatch(context.Background(), "key", nil))

	stats := eng.Stats()
	assert.Equal(t, uint64(2), stats.Dispatches)
	assert.Equal(t, uint64(1), stats.Suppressed)
	assert.Equal(t, uint64(1), stats.HandlersExecuted)
}

func TestEngine_KeysAndEntries(t *testing.T) {
	eng := NewWithDefaults()
	log := &callLog{}

	_, err := eng.Register("b.key", log.handler())
	require.NoError(t, err)
	_, err = eng.Register("a.key", log.handler(), WithPriority(5))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.key", "b.key"}, eng.Keys())

	entries := eng.EntriesFor("a.key")
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Priority)
}
