// Package telemetry wires OpenTelemetry tracing into the engine.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/udisondev/gas/internal/config"
)

// Setup initialises OpenTelemetry tracing.
//
// Tracing is opt-in: when cfg is disabled or has no endpoint, Setup returns a
// no-op shutdown function and no global provider is registered. An endpoint
// without a scheme is treated as a plain-HTTP host:port.
//
// The returned shutdown function flushes pending spans and should be deferred
// by the caller.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}

	var opt otlptracehttp.Option
	if strings.Contains(cfg.Endpoint, "://") {
		opt = otlptracehttp.WithEndpointURL(cfg.Endpoint)
	} else {
		opt = otlptracehttp.WithEndpoint(cfg.Endpoint)
	}
	opts := []otlptracehttp.Option{opt}
	if !strings.HasPrefix(cfg.Endpoint, "https://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("creating otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("creating otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
