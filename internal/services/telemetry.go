package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "jt-wrs/backend/internal/services"

type telemetry struct {
	tracer        trace.Tracer
	registrations metric.Int64Counter
	failures      metric.Int64Counter
}

func newTelemetry() *telemetry {
	meter := otel.Meter(instrumentationName)

	registrations, err := meter.Int64Counter("wrs.registrations",
		metric.WithDescription("Workflow versions registered, by transaction branch"))
	if err != nil {
		registrations = noop.Int64Counter{}
	}
	failures, err := meter.Int64Counter("wrs.registration.failures",
		metric.WithDescription("Rejected or failed registrations, by reason"))
	if err != nil {
		failures = noop.Int64Counter{}
	}

	return &telemetry{
		tracer:        otel.Tracer(instrumentationName),
		registrations: registrations,
		failures:      failures,
	}
}

func (t *telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *telemetry) registered(ctx context.Context, branch string) {
	t.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}

func (t *telemetry) failed(ctx context.Context, err error) {
	t.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
}
