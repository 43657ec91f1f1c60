// Package trace provides distributed tracing capabilities for SafeAlign.
// It integrates the OpenTelemetry SDK to create spans around the rollout
// and update phases of training, exported over OTLP/gRPC.
package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ============================================================================
// Tracer Interface
// ============================================================================

// Tracer defines the distributed tracing interface
type Tracer interface {
	// Start creates a new span
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)

	// GetTraceID returns trace ID from context
	GetTraceID(ctx context.Context) string

	// Shutdown gracefully shuts down the tracer
	Shutdown(ctx context.Context) error
}

// TracerConfig defines tracer configuration
type TracerConfig struct {
	// Service name
	ServiceName string

	// Service version
	ServiceVersion string

	// Environment (development, staging, production)
	Environment string

	// Endpoint for the OTLP exporter
	Endpoint string

	// Sampling rate (0.0 - 1.0)
	SamplingRate float64
}

// ============================================================================
// OpenTelemetry Tracer Implementation
// ============================================================================

// OtelTracer wraps an OpenTelemetry tracer provider
type OtelTracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracer creates a new OpenTelemetry tracer with an OTLP/gRPC exporter
func NewTracer(cfg TracerConfig) (Tracer, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &OtelTracer{
		tracer:   provider.Tracer(cfg.ServiceName),
		provider: provider,
	}, nil
}

// Start creates a new span
func (t *OtelTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// GetTraceID returns trace ID from context
func (t *OtelTracer) GetTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// Shutdown gracefully shuts down the tracer
func (t *OtelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// ============================================================================
// No-op Tracer
// ============================================================================

// NoopTracer is a tracer that records nothing
type NoopTracer struct {
	tracer trace.Tracer
}

// NewNoopTracer creates a no-op tracer
func NewNoopTracer() Tracer {
	return &NoopTracer{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// Start creates a no-op span
func (t *NoopTracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// GetTraceID returns an empty trace ID
func (t *NoopTracer) GetTraceID(ctx context.Context) string { return "" }

// Shutdown is a no-op
func (t *NoopTracer) Shutdown(ctx context.Context) error { return nil }
