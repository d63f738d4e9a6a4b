// Package observability wires optional OpenTelemetry tracing into the
// core, grounded on internal/infrastructure/observability/tracing.go
// TracerProvider, trimmed from its X-Ray/OTLP dual-exporter and sampler
// configuration surface down to a single OTLP-over-gRPC exporter, since
// this layer has one deployment shape to support rather than the
// multi-cloud one.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the optional tracer. Endpoint empty disables
// tracing entirely: Setup returns a no-op tracer so call sites never need
// to nil-check.
type TracingConfig struct {
	ServiceName string
	Endpoint    string
}

// Setup builds a TracerProvider exporting to Endpoint via OTLP/gRPC, or a
// no-op provider if Endpoint is empty. The returned shutdown func flushes
// and closes the exporter; callers should defer it.
func Setup(ctx context.Context, cfg TracingConfig) (trace.Tracer, func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return otel.Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(0.1)),
	)
	otel.SetTracerProvider(provider)

	return provider.Tracer(cfg.ServiceName), provider.Shutdown, nil
}
