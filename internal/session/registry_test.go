package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/runstate"
	"github.com/ashita-ai/auditfront/internal/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *fakeClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func() *runstate.Machine {
		exec := runstate.NewSimulatedExecutor(runstate.SimulatedConfig{Speed: 1000})
		return runstate.New(exec, runstate.WithLogger(logger))
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := NewRegistry(factory, ttl, logger)
	r.now = clock.Now
	t.Cleanup(r.Close)
	return r, clock
}

func freeText() model.RunRequest {
	return model.RunRequest{
		EntityID: "ACME",
		Mode:     model.ModeFreeText,
		FreeText: "We report scope 1 emissions.",
		Metrics:  model.Metrics{Employees: 10, RevenueEUR: 1, TotalAssetsEUR: 1, ReportingYear: 2024},
	}
}

func TestRegistry_OneMachinePerSession(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute)

	a := r.Get("a")
	require.NotNil(t, a)
	assert.Same(t, a, r.Get("a"))
	assert.NotSame(t, a, r.Get("b"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_EvictIdleClosesMachine(t *testing.T) {
	r, clock := newTestRegistry(t, time.Minute)
	old := r.Get("old")

	clock.Advance(2 * time.Minute)
	r.Get("fresh")

	assert.Equal(t, 1, r.EvictIdle())
	assert.Equal(t, 1, r.Len())
	assert.ErrorIs(t, old.Start(freeText()), runstate.ErrClosed)
	assert.NotSame(t, old, r.Get("old"), "an evicted session starts over")
}

func TestRegistry_PinnedSessionsSurvive(t *testing.T) {
	r, clock := newTestRegistry(t, time.Minute)
	m, release := r.Acquire("streaming")

	clock.Advance(time.Hour)
	assert.Zero(t, r.EvictIdle())
	assert.Same(t, m, r.Get("streaming"))

	release()
	release()
	clock.Advance(time.Hour)
	assert.Equal(t, 1, r.EvictIdle())
}

func TestRegistry_RunClosesOnCancel(t *testing.T) {
	r, _ := newTestRegistry(t, time.Minute)
	m := r.Get("a")

	ctx, cancel := context.WithCancel(testutil.Context(t, testutil.DefaultTimeout))
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("Run did not return after cancel")
	}
	assert.ErrorIs(t, m.Start(freeText()), runstate.ErrClosed)
	assert.Nil(t, r.Get("a"))

	m2, release := r.Acquire("b")
	assert.Nil(t, m2)
	release()
}
