package handler

import (
	"sync"
	"sync/atomic"
)

// Verdict is the continuation decision recorded on a Controller.
type Verdict int32

const (
	// VerdictPending means the handler has not decided yet.
	VerdictPending Verdict = iota

	// VerdictContinue means the walk proceeds to the next entry.
	VerdictContinue

	// VerdictStop means the walk halts after this entry.
	VerdictStop
)

// String returns a human-readable verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "pending"
	case VerdictContinue:
		return "continue"
	case VerdictStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Controller coordinates continuation between one handler invocation and the
// pipeline walk. It is created fresh per invocation and never reused.
//
// Only the first of Next/Stop counts; later calls are no-ops.
type Controller struct {
	once    sync.Once
	verdict atomic.Int32
	decided chan struct{}
}

// NewController creates a controller in the pending state.
func NewController() *Controller {
	return &Controller{decided: make(chan struct{})}
}

// Next records that the walk may proceed to the next entry.
// A non-blocking handler must call Next before returning for the walk to
// continue; the walk resumes as soon as Next is called, it does not wait for
// the handler to return.
func (c *Controller) Next() {
	c.decide(VerdictContinue)
}

// Stop records that the walk must halt after this entry.
func (c *Controller) Stop() {
	c.decide(VerdictStop)
}

func (c *Controller) decide(v Verdict) {
	c.once.Do(func() {
		c.verdict.Store(int32(v))
		close(c.decided)
	})
}

// Decided returns a channel closed when the handler records a verdict.
func (c *Controller) Decided() <-chan struct{} {
	return c.decided
}

// Verdict returns the verdict recorded so far.
func (c *Controller) Verdict() Verdict {
	return Verdict(c.verdict.Load())
}
