package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	require.Error(t, err)
	assert.Equal(t, `TEST_INT_BAD="abc" is not a valid integer`, err.Error())
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "fast")
	_, err := envFloat("TEST_FLOAT_BAD", 1)
	require.Error(t, err)
	assert.Equal(t, `TEST_FLOAT_BAD="fast" is not a valid number`, err.Error())
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	require.Error(t, err)
	assert.Equal(t, `TEST_BOOL_BAD="maybe" is not a valid boolean`, err.Error())
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, v)
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	require.Error(t, err)
	assert.Equal(t, `TEST_DUR_BAD="five-seconds" is not a valid duration`, err.Error())
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("AUDITFRONT_PORT", "abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDITFRONT_PORT")
	assert.Contains(t, err.Error(), "abc")
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("AUDITFRONT_PORT", "abc")
	t.Setenv("AUDITFRONT_SIMULATE", "xyz")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDITFRONT_PORT")
	assert.Contains(t, err.Error(), "AUDITFRONT_SIMULATE")
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	t.Setenv("AUDITFRONT_BACKEND_URL", "")
	t.Setenv("AUDITFRONT_SIMULATE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Simulate, "no backend configured means simulated mode")
	assert.Equal(t, 1.0, cfg.SimulateSpeed)
}

func TestLoadLiveWhenBackendConfigured(t *testing.T) {
	t.Setenv("AUDITFRONT_BACKEND_URL", "http://localhost:8000")
	t.Setenv("AUDITFRONT_SIMULATE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Simulate)
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
}

func TestLoadSimulateOverridesBackend(t *testing.T) {
	t.Setenv("AUDITFRONT_BACKEND_URL", "http://localhost:8000")
	t.Setenv("AUDITFRONT_SIMULATE", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Simulate)
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:                8080,
		Simulate:            true,
		SimulateSpeed:       1,
		SubmitTimeout:       time.Second,
		SessionTTL:          time.Minute,
		MaxRequestBodyBytes: 1024,
	}
	require.NoError(t, base.Validate())

	live := base
	live.Simulate = false
	assert.ErrorContains(t, live.Validate(), "AUDITFRONT_BACKEND_URL is required")

	live.BackendURL = "localhost:8000"
	assert.ErrorContains(t, live.Validate(), "absolute http(s) URL")

	live.BackendURL = "https://analysis.example.com"
	assert.NoError(t, live.Validate())

	slow := base
	slow.SimulateSpeed = 0
	assert.ErrorContains(t, slow.Validate(), "AUDITFRONT_SIMULATE_SPEED")

	port := base
	port.Port = 70000
	assert.ErrorContains(t, port.Validate(), "AUDITFRONT_PORT")
}
