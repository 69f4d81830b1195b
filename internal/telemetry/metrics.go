package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter bundles the instruments the agent pipeline records against: decision
// latency, queue occupancy, monitor outcomes, and auto-resurrection
// admission attempts. Every constructor error is
// swallowed into a nil instrument (Add/Record on a nil *_, _ check below)
// rather than failing startup — metrics are best-effort, never load-bearing.
type Meter struct {
	decisionLatency metric.Float64Histogram
	queueDepth      metric.Int64UpDownCounter
	monitorOutcomes metric.Int64Counter
	autoResurrections metric.Int64Counter
}

func newMeter(m metric.Meter) *Meter {
	decisionLatency, _ := m.Float64Histogram("medic.decision.latency_ms",
		metric.WithDescription("time from kill report ingest to decision outcome, in milliseconds"),
		metric.WithUnit("ms"),
	)
	queueDepth, _ := m.Int64UpDownCounter("medic.queue.depth",
		metric.WithDescription("pending approval queue depth"),
	)
	monitorOutcomes, _ := m.Int64Counter("medic.monitor.outcomes",
		metric.WithDescription("post-resurrection monitoring outcomes by result"),
	)
	autoResurrections, _ := m.Int64Counter("medic.admission.attempts",
		metric.WithDescription("auto-resurrection attempts by result"),
	)
	return &Meter{
		decisionLatency:   decisionLatency,
		queueDepth:        queueDepth,
		monitorOutcomes:   monitorOutcomes,
		autoResurrections: autoResurrections,
	}
}

// RecordDecisionLatency records the ingest-to-decision duration for one kill
// report, tagged with the resulting outcome.
func (m *Meter) RecordDecisionLatency(ctx context.Context, ms float64, outcome string) {
	if m == nil || m.decisionLatency == nil {
		return
	}
	m.decisionLatency.Record(ctx, ms, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// AdjustQueueDepth applies delta (+1 on enqueue, -1 on approve/deny/expire)
// to the pending-queue gauge.
func (m *Meter) AdjustQueueDepth(ctx context.Context, delta int64) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Add(ctx, delta)
}

// RecordMonitorOutcome tags one completed monitoring session by its result
// (e.g. "healthy", "rolled_back").
func (m *Meter) RecordMonitorOutcome(ctx context.Context, result string) {
	if m == nil || m.monitorOutcomes == nil {
		return
	}
	m.monitorOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordAdmissionAttempt tags one auto-resurrection admission attempt by its
// result (e.g. "success", "rate_limited", "gate_failed").
func (m *Meter) RecordAdmissionAttempt(ctx context.Context, result string) {
	if m == nil || m.autoResurrections == nil {
		return
	}
	m.autoResurrections.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
