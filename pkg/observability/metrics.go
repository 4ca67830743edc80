// Package observability provides OpenTelemetry instrumentation for the
// engine. Instruments come from the global meter provider: a host
// application that installs a real provider gets metrics, everyone else
// gets no-ops.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "lumen.sdk"

// Metrics holds the engine's instrument set, following the RED
// (Rate, Errors, Duration) pattern.
type Metrics struct {
	evaluations  metric.Int64Counter
	failures     metric.Int64Counter
	duration     metric.Float64Histogram
	scores       metric.Int64Histogram
	chainAppends metric.Int64Counter
}

// NewMetrics registers the instrument set against the global meter.
func NewMetrics(version string) (*Metrics, error) {
	meter := otel.Meter(instrumentationName, metric.WithInstrumentationVersion(version))

	m := &Metrics{}
	var err error

	if m.evaluations, err = meter.Int64Counter("lumen.evaluations.total",
		metric.WithDescription("Completed evaluations by verdict")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter("lumen.evaluations.errors.total",
		metric.WithDescription("Evaluations rejected before scoring")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("lumen.evaluation.duration.ms",
		metric.WithDescription("End-to-end evaluation duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("observability: register histogram: %w", err)
	}
	if m.scores, err = meter.Int64Histogram("lumen.score",
		metric.WithDescription("Final clamped scores")); err != nil {
		return nil, fmt.Errorf("observability: register histogram: %w", err)
	}
	if m.chainAppends, err = meter.Int64Counter("lumen.chain.appends.total",
		metric.WithDescription("Audit chain events appended")); err != nil {
		return nil, fmt.Errorf("observability: register counter: %w", err)
	}
	return m, nil
}

// RecordEvaluation records one completed evaluation.
func (m *Metrics) RecordEvaluation(ctx context.Context, verdict string, score int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("verdict", verdict))
	m.evaluations.Add(ctx, 1, attrs)
	m.scores.Record(ctx, int64(score), attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0)
}

// RecordFailure records an evaluation rejected before scoring.
func (m *Metrics) RecordFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordChainAppend records one audit chain append.
func (m *Metrics) RecordChainAppend(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.chainAppends.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}
