// Package tracing wires the carried TelemetryConfig to an OpenTelemetry
// tracer: one span per sandbox_invocation_* event pair and one per
// chain_step_*, exported over OTLP when enabled, a no-op otherwise.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/tinyclaw/internal/config"
)

const tracerName = "tinyclaw/orchestrator"

// Collector emits spans around sandbox invocations and chain steps.
type Collector struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// New builds a Collector from cfg. When cfg.Enabled is false, the
// returned Collector uses a no-op tracer and its Shutdown is a no-op.
func New(ctx context.Context, cfg config.TelemetryConfig) (*Collector, error) {
	if !cfg.Enabled {
		return &Collector{
			tracer:   noop.NewTracerProvider().Tracer(tracerName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tinyclaw-processor"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Collector{
		tracer:   tp.Tracer(tracerName),
		shutdown: tp.Shutdown,
	}, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	var opts []otlptrace.Option
	switch cfg.Protocol {
	case "http":
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			httpOpts = append(httpOpts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, httpOpts...)
	default:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, grpcOpts...)
	}
}

// StartSandboxInvocation opens a span covering one sandbox invocation
// attempt for agentID.
func (c *Collector) StartSandboxInvocation(ctx context.Context, agentID, provider string, attempt int) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "sandbox_invocation",
		trace.WithAttributes(
			attribute.String("tinyclaw.agent_id", agentID),
			attribute.String("tinyclaw.provider", provider),
			attribute.Int("tinyclaw.attempt", attempt),
		),
	)
}

// StartChainStep opens a span covering one chain step invocation.
func (c *Collector) StartChainStep(ctx context.Context, teamID, agentID string, stepIndex int) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "chain_step",
		trace.WithAttributes(
			attribute.String("tinyclaw.team_id", teamID),
			attribute.String("tinyclaw.agent_id", agentID),
			attribute.Int("tinyclaw.step_index", stepIndex),
		),
	)
}

// Shutdown flushes and releases the underlying tracer provider, if any.
func (c *Collector) Shutdown(ctx context.Context) error {
	return c.shutdown(ctx)
}
