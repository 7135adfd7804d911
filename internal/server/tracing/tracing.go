// Package tracing installs the process-wide OpenTelemetry tracer provider
// used by the gRPC stats handler.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config selects where spans go. An empty Endpoint disables export; trace
// context is still propagated.
type Config struct {
	Endpoint    string
	ServiceName string
	SampleRatio float64
}

type Tracing struct {
	provider *sdktrace.TracerProvider
}

// Setup registers W3C trace-context propagation and, when an endpoint is
// configured, a batching OTLP/gRPC exporter.
func Setup(ctx context.Context, cfg Config) (*Tracing, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		return &Tracing{}, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	)
	if err != nil {
		return nil, err
	}
	return install(exp, cfg), nil
}

func install(exp sdktrace.SpanExporter, cfg Config) *Tracing {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{provider: tp}
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes pending spans. It is a no-op when export is disabled.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
