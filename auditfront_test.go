package auditfront_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/auditfront"
	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AUDITFRONT_PORT", "AUDITFRONT_BACKEND_URL", "AUDITFRONT_SIMULATE",
		"AUDITFRONT_SESSION_KEY_PATH", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func health(t *testing.T, h http.Handler) model.HealthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data model.HealthResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data
}

func TestNew_SimulatedByDefault(t *testing.T) {
	clearEnv(t)
	app, err := auditfront.New(auditfront.WithVersion("1.2.3"), auditfront.WithLogger(quietLogger()))
	require.NoError(t, err)

	got := health(t, app.Handler())
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, "simulated", got.Executor)
}

func TestNew_BackendURLSelectsLive(t *testing.T) {
	clearEnv(t)
	app, err := auditfront.New(
		auditfront.WithBackendURL("http://localhost:8000"),
		auditfront.WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	assert.Equal(t, "live", health(t, app.Handler()).Executor)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	clearEnv(t)
	_, err := auditfront.New(auditfront.WithSimulate(false), auditfront.WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "AUDITFRONT_BACKEND_URL is required")
}

func TestWithMiddleware_Outermost(t *testing.T) {
	clearEnv(t)
	var order []string
	tag := func(name string) auditfront.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	app, err := auditfront.New(
		auditfront.WithMiddleware(tag("first")),
		auditfront.WithMiddleware(tag("second")),
		auditfront.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	health(t, app.Handler())
	assert.Equal(t, []string{"first", "second"}, order)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	clearEnv(t)
	port := freePort(t)
	app, err := auditfront.New(auditfront.WithPort(port), auditfront.WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	testutil.Eventually(t, testutil.DefaultTimeout, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test probe
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "server never became healthy")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("Run did not return after cancel")
	}
}
