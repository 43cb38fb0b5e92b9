// Package otelx wires the OpenTelemetry SDK into clawbench: one OTLP/HTTP
// exporter, one global provider, named tracers per subsystem.
package otelx

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer provider; callers defer it from main.
type Shutdown func(context.Context) error

// noopShutdown is returned when tracing is disabled so callers never need a
// nil check.
func noopShutdown(context.Context) error { return nil }

// Setup installs a global TracerProvider exporting spans via OTLP/HTTP, or a
// no-op provider when enabled is false (so instrumentation call sites never
// need to branch on configuration).
func Setup(ctx context.Context, enabled bool, endpoint, serviceName string) (Shutdown, error) {
	if !enabled {
		return noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("otelx: build exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otelx: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer off the global provider; subsystems
// pass their own name (actor, tools, gateway).
func Tracer(name string) trace.Tracer {
	return otel.Tracer("clawbench/" + name)
}
