package handler

import (
	"context"

	"github.com/google/uuid"
)

// Func is the handler function signature.
//
// payload is the value passed to Dispatch; its shape is a caller convention
// for the action key. ctl controls pipeline continuation (see Controller).
// The returned value and error are recorded as the handler's outcome when
// the dispatch collects results.
type Func func(ctx context.Context, payload any, ctl *Controller) (any, error)

// Entry is one registered handler for an action key.
//
// Entries are owned by the handler table. Fields are fixed at registration
// and must not be modified afterwards; the table relies on Order never being
// reassigned.
type Entry struct {
	// ID uniquely identifies the entry within its action key.
	ID string

	// ActionKey is the action the entry is registered for.
	ActionKey string

	// Priority determines execution order. Higher values run earlier;
	// entries with equal priority run in registration order.
	Priority int

	// Order is the monotonic registration sequence number, used as the
	// tie-break for equal priorities.
	Order uint64

	// Fn is the handler function.
	Fn Func

	// Blocking marks a handler whose completion the pipeline awaits before
	// moving to the next entry.
	Blocking bool

	// Tags are free-form labels used by result-collection filters.
	Tags []string

	// Category is an optional grouping label, empty if unset.
	Category string

	tagSet map[string]bool
}

// NewEntry creates an entry with a fresh ID and the given settings.
func NewEntry(actionKey string, fn Func, priority int, order uint64, blocking bool, tags []string, category string) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		ActionKey: actionKey,
		Priority:  priority,
		Order:     order,
		Fn:        fn,
		Blocking:  blocking,
		Tags:      tags,
		Category:  category,
	}
	if len(tags) > 0 {
		e.tagSet = make(map[string]bool, len(tags))
		for _, tag := range tags {
			e.tagSet[tag] = true
		}
	}
	return e
}

// HasTag returns true if the entry carries the given tag.
func (e *Entry) HasTag(tag string) bool {
	return e.tagSet[tag]
}

// Filter selects a subset of a key's entries for result collection.
// The zero value selects everything.
type Filter struct {
	// Tags selects entries carrying at least one of the listed tags.
	Tags []string

	// Category selects entries with this exact category.
	Category string

	// Payload is an optional predicate over the dispatch payload; when set,
	// the filter selects no entries for payloads it rejects.
	Payload func(payload any) bool
}

// Matches reports whether the entry passes the tag/category criteria.
// The payload predicate is evaluated separately, once per dispatch.
func (f *Filter) Matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if len(f.Tags) > 0 {
		found := false
		for _, tag := range f.Tags {
			if e.HasTag(tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
