// Package telemetry wires OpenTelemetry tracing and metrics around the
// agent's pipeline stages (ingest, assess, decide, admit, monitor),
// following the same zero-configuration-by-default pattern as the
// teacher's own telemetry setup: no exporter configured means spans and
// instruments are still created against a no-op provider, so component
// code never has to branch on whether telemetry is enabled.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const instrumentationName = "github.com/kase1111-hash/medic-agent/internal/telemetry"

// Provider owns the process's tracer/meter and the shutdown hook for
// whatever exporter backs them.
type Provider struct {
	traceProvider *sdktrace.TracerProvider
	tracer trace.Tracer
	meter *Meter
}

// Options controls exporter selection. Exporter "none" configures a
// resource-tagged but exporter-less TracerProvider: spans are created and
// dropped, never emitted; "stdout" writes each finished span as JSON.
type Options struct {
	ServiceName string
	AgentID string
	Exporter string // "stdout" or "none"
}

// New constructs a Provider and registers it as the process-global
// tracer/meter provider via otel.SetTracerProvider.
func New(ctx context.Context, opts Options) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			attribute.String("agent.id", opts.AgentID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.Exporter == "stdout" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("building stdout span exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Provider{
		traceProvider: tp,
		tracer: tp.Tracer(instrumentationName),
		meter: newMeter(otel.GetMeterProvider().Meter(instrumentationName)),
	}, nil
}

// Noop returns a Provider whose tracer/meter are both backed by the global
// no-op implementations, for components constructed before telemetry is
// configured (tests, or Telemetry.Enabled=false).
func Noop() *Provider {
	return &Provider{
		tracer: otel.Tracer(instrumentationName),
		meter: newMeter(otel.Meter(instrumentationName)),
	}
}

// Tracer returns the provider's tracer. Never nil.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Metrics returns the provider's instrument set. Never nil.
func (p *Provider) Metrics() *Meter { return p.meter }

// Shutdown flushes and releases the underlying exporter, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.traceProvider == nil {
		return nil
	}
	return p.traceProvider.Shutdown(ctx)
}

// StartSpan starts a span for one pipeline stage, tagged with the kill
// report's identifying fields so a trace can be correlated back to a
// specific kill across the ingest/assess/decide/admit chain.
func (p *Provider) StartSpan(ctx context.Context, stage, killID, module string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, stage, trace.WithAttributes(
		attribute.String("kill_id", killID),
		attribute.String("target_module", module),
	))
}
