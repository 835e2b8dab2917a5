package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dshills/actionpipe/pipeline/handler"
)

// Table maps action keys to ordered handler entries.
//
// Buckets are kept sorted by (priority descending, registration order
// ascending) at mutation time; this ordering is the single source of truth
// for execution order everywhere in the engine. Reads take a snapshot, so a
// dispatch in progress is unaffected by concurrent register/unregister.
type Table struct {
	mu        sync.RWMutex
	buckets   map[string][]*handler.Entry
	nextOrder atomic.Uint64

	// onEmpty is signalled after the last entry for a key is removed.
	onEmpty func(key string)
}

// NewTable creates an empty handler table. onEmpty, if non-nil, is called
// whenever a key loses its last entry.
func NewTable(onEmpty func(key string)) *Table {
	return &Table{
		buckets: make(map[string][]*handler.Entry),
		onEmpty: onEmpty,
	}
}

// Insert adds a handler entry for key and returns the entry along with its
// disposer. The disposer is idempotent; the second call is a no-op.
func (t *Table) Insert(key string, fn handler.Func, priority int, blocking bool, tags []string, category string) (*handler.Entry, func()) {
	entry := handler.NewEntry(key, fn, priority, t.nextOrder.Add(1), blocking, tags, category)

	t.mu.Lock()
	bucket := append(t.buckets[key], entry)
	sort.Slice(bucket, func(i, j int) bool {
		if bucket[i].Priority != bucket[j].Priority {
			return bucket[i].Priority > bucket[j].Priority
		}
		return bucket[i].Order < bucket[j].Order
	})
	t.buckets[key] = bucket
	t.mu.Unlock()

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			t.remove(key, entry.ID)
		})
	}
	return entry, dispose
}

// remove deletes the entry with the given ID from key's bucket and fires
// onEmpty when the bucket drains.
func (t *Table) remove(key, id string) {
	t.mu.Lock()
	bucket := t.buckets[key]
	for i, e := range bucket {
		if e.ID == id {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	empty := len(bucket) == 0
	if empty {
		delete(t.buckets, key)
	} else {
		t.buckets[key] = bucket
	}
	t.mu.Unlock()

	if empty && t.onEmpty != nil {
		t.onEmpty(key)
	}
}

// EntriesFor returns a snapshot of key's entries in table order, optionally
// reduced by a tag/category filter. Callers must not modify the entries.
func (t *Table) EntriesFor(key string, filter *handler.Filter) []*handler.Entry {
	t.mu.RLock()
	bucket := t.buckets[key]
	snapshot := make([]*handler.Entry, 0, len(bucket))
	for _, e := range bucket {
		if filter.Matches(e) {
			snapshot = append(snapshot, e)
		}
	}
	t.mu.RUnlock()
	return snapshot
}

// Count returns the number of entries registered for key.
func (t *Table) Count(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets[key])
}

// Has returns true if at least one entry is registered for key.
func (t *Table) Has(key string) bool {
	return t.Count(key) > 0
}

// Keys returns all action keys with registered entries, sorted.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.buckets))
	for key := range t.buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
