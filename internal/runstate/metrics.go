package runstate

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/auditfront/internal/telemetry"
)

// Run outcomes recorded on auditfront.runs.finished.
const (
	outcomeComplete = "complete"
	outcomeError    = "error"
	outcomeSkipped  = "skipped"
	outcomeReset    = "reset"
	outcomeClosed   = "closed"
)

type runMetrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	duration metric.Float64Histogram
}

func newRunMetrics() *runMetrics {
	meter := telemetry.Meter("auditfront/runstate")
	started, _ := meter.Int64Counter("auditfront.runs.started",
		metric.WithDescription("Runs started, by executor"))
	finished, _ := meter.Int64Counter("auditfront.runs.finished",
		metric.WithDescription("Runs ended, by executor and outcome"))
	duration, _ := meter.Float64Histogram("auditfront.runs.duration",
		metric.WithDescription("Run wall time until it ended"),
		metric.WithUnit("ms"))
	return &runMetrics{started: started, finished: finished, duration: duration}
}

func (m *runMetrics) runStarted(executor string) {
	m.started.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("executor", executor)))
}

func (m *runMetrics) runFinished(executor, outcome string, ms float64) {
	attrs := metric.WithAttributes(
		attribute.String("executor", executor),
		attribute.String("outcome", outcome),
	)
	m.finished.Add(context.Background(), 1, attrs)
	m.duration.Record(context.Background(), ms, attrs)
}
