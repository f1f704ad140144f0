package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Telemetry struct {
	tp     *trace.TracerProvider
	tracer oteltrace.Tracer

	serviceName    string
	serviceVersion string
}

// NewTelemetry installs a global tracer provider. When disabled it leaves
// the otel no-op provider in place and every span is dropped.
func NewTelemetry(ctx context.Context, serviceName, serviceVersion string, enabled, isDev bool, endpoint string) (*Telemetry, error) {
	t := &Telemetry{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
	}
	if !enabled {
		t.tracer = otel.Tracer(serviceName)
		return t, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	tp, err := NewTracerProvider(ctx, res, isDev, endpoint)
	if err != nil {
		return nil, err
	}

	t.tp = tp
	t.tracer = tp.Tracer(serviceName)
	return t, nil
}

func (t *Telemetry) Tracer() oteltrace.Tracer {
	return t.tracer
}

func (t *Telemetry) TraceStart(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, name)
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}
