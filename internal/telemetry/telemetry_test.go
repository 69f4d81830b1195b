package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopProviderUsableWithoutConfiguration(t *testing.T) {
	p := Noop()
	ctx, span := p.StartSpan(context.Background(), "test.stage", "kill-1", "checkout")
	defer span.End()
	assert.NotNil(t, ctx)

	p.Metrics().RecordDecisionLatency(ctx, 12.5, "denied")
	p.Metrics().AdjustQueueDepth(ctx, 1)
	p.Metrics().RecordMonitorOutcome(ctx, "healthy")
	p.Metrics().RecordAdmissionAttempt(ctx, "success")

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewWithNoneExporterStillProducesUsableSpans(t *testing.T) {
	p, err := New(context.Background(), Options{ServiceName: "medic-agent-test", AgentID: "agent-1", Exporter: "none"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), "test.stage", "kill-1", "checkout")
	span.End()
	assert.NotNil(t, ctx)
}

func TestNewWithStdoutExporterConstructsProvider(t *testing.T) {
	p, err := New(context.Background(), Options{ServiceName: "medic-agent-test", AgentID: "agent-1", Exporter: "stdout"})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())
	assert.NotNil(t, p.Tracer())
}

func TestRecordingOnNilMeterDoesNotPanic(t *testing.T) {
	var m *Meter
	m.RecordDecisionLatency(context.Background(), 1, "x")
	m.AdjustQueueDepth(context.Background(), 1)
	m.RecordMonitorOutcome(context.Background(), "x")
	m.RecordAdmissionAttempt(context.Background(), "x")
}
