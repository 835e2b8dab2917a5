// Package script adapts Lua functions to pipeline handlers.
//
// A script chunk must return a function taking the dispatch payload and
// returning a result value, optionally followed by a boolean: a true second
// return value stops the pipeline walk after this handler.
//
//	return function(payload)
//	  return payload.amount * 2
//	end
//
// Payloads cross the Go/Lua boundary as tables (maps and slices), numbers,
// strings, and booleans. The host owns a single Lua state; handler
// execution is serialized on it.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/actionpipe/pipeline/handler"
)

// Script errors.
var (
	// ErrNotFunction is returned when a chunk does not return a function.
	ErrNotFunction = errors.New("script: chunk must return a function")

	// ErrHostClosed is returned when compiling on a closed host.
	ErrHostClosed = errors.New("script: host is closed")
)

// Host runs Lua-scripted pipeline handlers on one Lua state.
type Host struct {
	mu     sync.Mutex
	state  *lua.LState
	closed bool
}

// NewHost creates a host with a fresh Lua state.
func NewHost() *Host {
	return &Host{state: lua.NewState()}
}

// Close releases the Lua state. Handlers compiled by this host error after
// Close.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		h.state.Close()
	}
}

// Compile evaluates src and adapts the function it returns to a pipeline
// handler. The handler behaves as blocking-style: it decides continuation
// before returning (Next, or Stop when the script's second return value is
// true), so it can be registered blocking or non-blocking.
func (h *Host) Compile(src string) (handler.Func, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}

	if err := h.state.DoString(src); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	if h.state.GetTop() == 0 {
		return nil, ErrNotFunction
	}
	val := h.state.Get(-1)
	h.state.Pop(1)

	fn, ok := val.(*lua.LFunction)
	if !ok {
		return nil, ErrNotFunction
	}

	return func(ctx context.Context, payload any, ctl *handler.Controller) (any, error) {
		h.mu.Lock()
		defer h.mu.Unlock()

		if h.closed {
			ctl.Next()
			return nil, ErrHostClosed
		}

		L := h.state
		L.Push(fn)
		L.Push(toLua(L, payload))
		if err := L.PCall(1, 2, nil); err != nil {
			// Script failure is a handler error, not a walk stopper.
			ctl.Next()
			return nil, fmt.Errorf("script: %w", err)
		}

		stop := L.Get(-1)
		result := L.Get(-2)
		L.Pop(2)

		if b, ok := stop.(lua.LBool); ok && bool(b) {
			ctl.Stop()
		} else {
			ctl.Next()
		}
		return toGo(result), nil
	}, nil
}

// toLua converts a Go value to a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, toLua(L, item))
		}
		return t
	case []string:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, lua.LString(item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	case map[string]string:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, lua.LString(item))
		}
		return t
	default:
		ud := L.NewUserData()
		ud.Value = v
		return ud
	}
}

// toGo converts a Lua value to a Go value. Tables with contiguous integer
// keys starting at 1 become slices; other tables become maps.
func toGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable) any {
	maxN := t.MaxN()
	if maxN > 0 {
		count := 0
		t.ForEach(func(_, _ lua.LValue) { count++ })
		if count == maxN {
			arr := make([]any, maxN)
			for i := 1; i <= maxN; i++ {
				arr[i-1] = toGo(t.RawGetInt(i))
			}
			return arr
		}
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = toGo(v)
	})
	return m
}
