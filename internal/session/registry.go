// Package session keeps one run state machine per browser session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashita-ai/auditfront/internal/runstate"
)

// Factory builds the machine for a new session.
type Factory func() *runstate.Machine

type entry struct {
	machine  *runstate.Machine
	lastSeen time.Time
	pinned   int
}

// Registry maps session ids to machines. Sessions not seen for longer than
// the TTL, and not pinned by an open event stream, are evicted and their
// machines closed.
type Registry struct {
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry creates an empty registry. Run drives eviction.
func NewRegistry(factory Factory, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the machine for id, creating it on first use, and marks the
// session as seen. It returns nil after Close.
func (r *Registry) Get(id string) *runstate.Machine {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.touchLocked(id)
	if e == nil {
		return nil
	}
	return e.machine
}

// Acquire is Get for long-lived readers: the session cannot be evicted until
// release is called. release is idempotent.
func (r *Registry) Acquire(id string) (*runstate.Machine, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.touchLocked(id)
	if e == nil {
		return nil, func() {}
	}
	e.pinned++

	var once sync.Once
	return e.machine, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.pinned--
			e.lastSeen = r.now()
		})
	}
}

func (r *Registry) touchLocked(id string) *entry {
	if r.closed {
		return nil
	}
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{machine: r.factory()}
		r.sessions[id] = e
		r.logger.Debug("session: created", "session_id", id)
	}
	e.lastSeen = r.now()
	return e
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes and removes every expired, unpinned session and returns
// how many were evicted.
func (r *Registry) EvictIdle() int {
	r.mu.Lock()
	cutoff := r.now().Add(-r.ttl)
	var evicted []*runstate.Machine
	for id, e := range r.sessions {
		if e.pinned == 0 && e.lastSeen.Before(cutoff) {
			evicted = append(evicted, e.machine)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, m := range evicted {
		m.Close()
	}
	if len(evicted) > 0 {
		r.logger.Info("session: evicted idle sessions", "count", len(evicted))
	}
	return len(evicted)
}

// Run evicts idle sessions periodically until ctx is cancelled, then closes
// every remaining session.
func (r *Registry) Run(ctx context.Context) error {
	interval := max(r.ttl/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

// Close closes every session machine. Later Get calls return nil.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.machine.Close()
	}
}
