package runstate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront/internal/config"
	"github.com/ashita-ai/auditfront/internal/runstate"
)

func TestNewExecutor(t *testing.T) {
	exec, err := runstate.NewExecutor(config.Config{Simulate: true, SimulateSpeed: 2}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "simulated", exec.Name())
	assert.True(t, runstate.New(exec).Simulated())

	exec, err = runstate.NewExecutor(config.Config{BackendURL: "http://localhost:8000", SubmitTimeout: time.Second}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "live", exec.Name())
	assert.False(t, runstate.New(exec).Simulated())

	_, err = runstate.NewExecutor(config.Config{BackendURL: "localhost:8000"}, nil)
	assert.Error(t, err)
}

func TestSubscribe_CoalescesAndReleases(t *testing.T) {
	m := newSimulated(t, shortScript(1, time.Second, time.Second))
	ch, cancel := m.Subscribe()
	assert.True(t, pending(ch), "a new subscription is primed")

	require.NoError(t, m.Start(freeTextRequest()))
	m.Reset()
	assert.True(t, pending(ch))
	assert.False(t, pending(ch), "bursts of changes coalesce into one signal")

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")
}
