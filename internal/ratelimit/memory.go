package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often refilled buckets are dropped.
const sweepInterval = time.Minute

// quota is what is left of one key's allowance.
type quota struct {
	tokens  float64
	updated time.Time
}

// MemoryLimiter keeps a token bucket per key in process. A bucket refills at
// rate tokens per second up to burst. A bucket that has refilled completely
// behaves exactly like a key never seen, so the sweeper drops it; memory is
// bounded by the sessions that started runs recently.
type MemoryLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu     sync.Mutex
	quotas map[string]*quota

	closeOnce sync.Once
	stop      chan struct{}
}

// NewMemoryLimiter returns a limiter allowing burst run starts at once and
// rate per second after that. Close stops its sweeper.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:   rate,
		burst:  float64(burst),
		now:    time.Now,
		quotas: make(map[string]*quota),
		stop:   make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token from key's bucket if one is available.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	q, ok := m.quotas[key]
	if !ok {
		q = &quota{tokens: m.burst}
		m.quotas[key] = q
	} else {
		q.tokens = m.level(q, now)
	}
	q.updated = now

	if q.tokens < 1 {
		return false, nil
	}
	q.tokens--
	return true, nil
}

// Wait is how long key has to wait for its next token. It is zero when a
// token is available now.
func (m *MemoryLimiter) Wait(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[key]
	if !ok {
		return 0
	}
	missing := 1 - m.level(q, m.now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / m.rate * float64(time.Second))
}

// Len is the number of keys currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.quotas)
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	return nil
}

// level is the token count of q at now, refill included.
func (m *MemoryLimiter) level(q *quota, now time.Time) float64 {
	return min(m.burst, q.tokens+now.Sub(q.updated).Seconds()*m.rate)
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.dropRefilled()
		}
	}
}

// dropRefilled forgets every key whose bucket is full again and reports how
// many were dropped.
func (m *MemoryLimiter) dropRefilled() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dropped := 0
	for key, q := range m.quotas {
		if m.level(q, now) >= m.burst {
			delete(m.quotas, key)
			dropped++
		}
	}
	return dropped
}
