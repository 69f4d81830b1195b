// Package selfmonitor implements the agent's self-monitoring: a sampling
// pass over decision latency, error rate, queue depth, host resources,
// and Killer/Intel connectivity, classified into an overall health status
// with bounded auto-remediation on CRITICAL transitions. The package runs no
// loop of its own: each Sample call is one pass, and nothing in the agent
// calls Sample on a timer.
package selfmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
)

// Status is a per-metric or overall self-monitor classification.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusDegraded Status = "DEGRADED"
	StatusCritical Status = "CRITICAL"
)

var statusRank = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}

func worst(a, b Status) Status {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

func classify(value, degradedAt, criticalAt float64) Status {
	switch {
	case value >= criticalAt:
		return StatusCritical
	case value >= degradedAt:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Thresholds not carried by config.SelfMonitorConfig (spec leaves only the
// sample interval and remediation cap configurable; per-metric thresholds
// are fixed operational defaults).
const (
	latencyDegradedMS       = 500.0
	latencyCriticalMS       = 2000.0
	errorDegradedCount      = 5.0
	errorCriticalCount      = 20.0
	queueDegradedDepth      = 80.0
	queueCriticalDepth      = 100.0
	resourceDegradedPercent = 80.0
	resourceCriticalPercent = 95.0
)

// MetricReport is one classified sample within a Report.
type MetricReport struct {
	Name   string
	Value  float64
	Status Status
}

// Report is one full self-monitor sampling pass.
type Report struct {
	SampledAt time.Time
	Metrics   []MetricReport
	Overall   Status
}

// ResourceSampler reports host resource utilization.
type ResourceSampler interface {
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}

// ConnectionChecker reports liveness of the Killer and Intel connections.
type ConnectionChecker interface {
	KillerConnected(ctx context.Context) bool
	IntelConnected(ctx context.Context) bool
}

// QueueDepthFunc returns the current approval queue pending count.
type QueueDepthFunc func() int

// RemediationHook performs a best-effort remediation action for metric
// (e.g. "memory" triggers a GC/trim hook) when the overall status just
// transitioned to CRITICAL.
type RemediationHook func(ctx context.Context, metric string) error

// Monitor samples the agent's own health.
type Monitor struct {
	cfg        config.SelfMonitorConfig
	resources  ResourceSampler
	conn       ConnectionChecker
	queueDepth QueueDepthFunc
	remediate  RemediationHook
	logger     agentlog.Logger
	now        func() time.Time

	mu                sync.Mutex
	decisionLatencies []time.Duration
	errorTimestamps   []time.Time
	lastOverall       Status
	remediationTimes  []time.Time
}

// New constructs a Monitor. resources, conn, queueDepth, and remediate may
// all be nil; nil collaborators simply skip that metric / remediation step.
func New(cfg config.SelfMonitorConfig, resources ResourceSampler, conn ConnectionChecker, queueDepth QueueDepthFunc, remediate RemediationHook, logger agentlog.Logger) *Monitor {
	return &Monitor{
		cfg: cfg, resources: resources, conn: conn, queueDepth: queueDepth, remediate: remediate,
		logger: logger, now: time.Now, lastOverall: StatusHealthy,
	}
}

// RecordDecisionLatency records one decision engine turnaround time, called
// on every decision.
func (m *Monitor) RecordDecisionLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisionLatencies = append(m.decisionLatencies, d)
	if len(m.decisionLatencies) > 100 {
		m.decisionLatencies = m.decisionLatencies[len(m.decisionLatencies)-100:]
	}
}

// RecordError records one error occurrence for the rolling error-rate
// metric.
func (m *Monitor) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorTimestamps = append(m.errorTimestamps, m.now().UTC())
}

// Sample runs one full sampling pass across every configured metric,
// classifies each, derives the overall status (worst of all metrics), and
// fires bounded auto-remediation on a fresh transition into CRITICAL.
func (m *Monitor) Sample(ctx context.Context) Report {
	now := m.now().UTC()
	var metrics []MetricReport

	m.mu.Lock()
	avgLatencyMS := averageLatencyMS(m.decisionLatencies)
	window := m.cfg.SampleInterval
	if window <= 0 {
		window = 15 * time.Second
	}
	errCount := countSince(m.errorTimestamps, now, window)
	m.mu.Unlock()

	metrics = append(metrics, MetricReport{"decision_latency_ms", avgLatencyMS, classify(avgLatencyMS, latencyDegradedMS, latencyCriticalMS)})
	metrics = append(metrics, MetricReport{"error_count", float64(errCount), classify(float64(errCount), errorDegradedCount, errorCriticalCount)})

	if m.queueDepth != nil {
		depth := float64(m.queueDepth())
		metrics = append(metrics, MetricReport{"queue_depth", depth, classify(depth, queueDegradedDepth, queueCriticalDepth)})
	}

	if m.resources != nil {
		if cpu, mem, err := m.resources.Sample(ctx); err == nil {
			metrics = append(metrics, MetricReport{"cpu_percent", cpu, classify(cpu, resourceDegradedPercent, resourceCriticalPercent)})
			metrics = append(metrics, MetricReport{"mem_percent", mem, classify(mem, resourceDegradedPercent, resourceCriticalPercent)})
		}
	}

	if m.conn != nil {
		metrics = append(metrics, MetricReport{"killer_connection", boolToValue(m.conn.KillerConnected(ctx)), connectionStatus(m.conn.KillerConnected(ctx))})
		metrics = append(metrics, MetricReport{"intel_connection", boolToValue(m.conn.IntelConnected(ctx)), connectionStatus(m.conn.IntelConnected(ctx))})
	}

	overall := StatusHealthy
	for _, metric := range metrics {
		overall = worst(overall, metric.Status)
	}

	m.mu.Lock()
	transitionedToCritical := overall == StatusCritical && m.lastOverall != StatusCritical
	m.lastOverall = overall
	m.mu.Unlock()

	if transitionedToCritical {
		m.remediateLocked(ctx, metrics)
	}

	return Report{SampledAt: now, Metrics: metrics, Overall: overall}
}

func (m *Monitor) remediateLocked(ctx context.Context, metrics []MetricReport) {
	if m.remediate == nil {
		return
	}
	m.mu.Lock()
	now := m.now().UTC()
	maxPerHour := m.cfg.MaxAutoRemediationsPerHour
	if maxPerHour <= 0 {
		maxPerHour = 3
	}
	if countSince(m.remediationTimes, now, time.Hour) >= maxPerHour {
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Warn("self-monitor remediation suppressed: hourly cap reached", agentlog.Fields{})
		}
		return
	}
	m.remediationTimes = append(m.remediationTimes, now)
	m.mu.Unlock()

	for _, metric := range metrics {
		if metric.Status != StatusCritical {
			continue
		}
		metricName := metric.Name
		if metricName == "mem_percent" {
			metricName = "memory"
		}
		if err := m.remediate(ctx, metricName); err != nil && m.logger != nil {
			m.logger.Error("self-monitor remediation failed", agentlog.Fields{"metric": metricName, "error": err.Error()})
		}
	}
}

func averageLatencyMS(samples []time.Duration) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return float64(total.Milliseconds()) / float64(len(samples))
}

func countSince(timestamps []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range timestamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func boolToValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func connectionStatus(connected bool) Status {
	if connected {
		return StatusHealthy
	}
	return StatusCritical
}
