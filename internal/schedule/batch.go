// Package schedule runs a batch of callbacks at fixed offsets from a common
// start time and cancels them together.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Batch is a set of callbacks keyed by their offset from Start. Callbacks
// run one at a time in offset order (ties keep insertion order), even when
// the underlying timers fire out of order. CancelAll stops every callback
// that has not started; it is safe to call more than once and from inside a
// callback.
type Batch struct {
	mu        sync.Mutex
	entries   []*entry
	timers    []*time.Timer
	started   bool
	cancelled bool

	// run serializes callbacks; next is the index of the first entry not yet run.
	run  sync.Mutex
	next int
}

type entry struct {
	offset time.Duration
	fn     func()
	due    bool
}

// Schedule adds fn to run offset after Start. It has no effect once the
// batch has been started or cancelled.
func (b *Batch) Schedule(offset time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.cancelled {
		return
	}
	if offset < 0 {
		offset = 0
	}
	b.entries = append(b.entries, &entry{offset: offset, fn: fn})
}

// Len returns the number of scheduled callbacks.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Start arms one timer per callback. Calling Start twice, or after
// CancelAll, does nothing.
func (b *Batch) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.cancelled {
		return
	}
	b.started = true
	sort.SliceStable(b.entries, func(i, j int) bool {
		return b.entries[i].offset < b.entries[j].offset
	})
	b.timers = make([]*time.Timer, len(b.entries))
	for i, e := range b.entries {
		b.timers[i] = time.AfterFunc(e.offset, func() { b.fire(i) })
	}
}

// CancelAll stops every callback that has not started yet.
func (b *Batch) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled {
		return
	}
	b.cancelled = true
	for _, t := range b.timers {
		t.Stop()
	}
}

// Cancelled reports whether CancelAll has been called.
func (b *Batch) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// fire marks entry i due and runs every due entry at the head of the queue.
// An entry whose timer fired early waits for its predecessors.
func (b *Batch) fire(i int) {
	b.mu.Lock()
	b.entries[i].due = true
	b.mu.Unlock()

	b.run.Lock()
	defer b.run.Unlock()
	for {
		b.mu.Lock()
		if b.cancelled || b.next >= len(b.entries) || !b.entries[b.next].due {
			b.mu.Unlock()
			return
		}
		fn := b.entries[b.next].fn
		b.next++
		b.mu.Unlock()

		fn()
	}
}
