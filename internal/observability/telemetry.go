// Package observability wires OpenTelemetry tracing through the gateway,
// the command dispatcher, and the plugin host: provider setup, the HTTP
// middleware, span helpers, and trace propagation into plugin hook
// payloads.
package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds tracing configuration.
type Config struct {
	Enabled        bool
	Exporter       string // otlp-http, none
	Endpoint       string // host:port of the OTLP HTTP collector
	ServiceName    string
	ServiceVersion string
	SampleRate     float64 // 0.0 to 1.0
}

type state struct {
	tracer  trace.Tracer
	enabled bool
}

var active atomic.Pointer[state]

func init() {
	active.Store(&state{tracer: noop.NewTracerProvider().Tracer("")})
}

// Init configures the process-wide tracer and returns a shutdown function
// that flushes buffered spans. With cfg.Enabled false, Tracer() keeps
// handing out a noop tracer and the returned shutdown does nothing.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		active.Store(&state{tracer: noop.NewTracerProvider().Tracer("")})
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	}
	switch cfg.Exporter {
	case "otlp-http", "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "none", "":
		// Spans are still created (tests, local runs) but never leave the
		// process.
	default:
		return nil, fmt.Errorf("unknown exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	active.Store(&state{tracer: tp.Tracer(cfg.ServiceName), enabled: true})

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1.0 || rate < 0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// Tracer returns the active tracer.
func Tracer() trace.Tracer {
	return active.Load().tracer
}

// Enabled reports whether tracing was initialized with a live provider.
func Enabled() bool {
	return active.Load().enabled
}
