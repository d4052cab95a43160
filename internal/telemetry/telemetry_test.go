package telemetry_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ashita-ai/auditfront/internal/telemetry"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), telemetry.Config{ServiceName: "auditfront-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_InstallsPropagators(t *testing.T) {
	_, err := telemetry.Init(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")

	// Injecting without an active span must not add a bogus header.
	h := http.Header{}
	otel.GetTextMapPropagator().Inject(context.Background(), propagation.HeaderCarrier(h))
	assert.Empty(t, h.Get("traceparent"))
}

func TestMeterAndTracer(t *testing.T) {
	m := telemetry.Meter("auditfront/test")
	require.NotNil(t, m)
	c, err := m.Int64Counter("auditfront.test.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)

	_, span := telemetry.Tracer("auditfront/test").Start(context.Background(), "test")
	span.End()
}
