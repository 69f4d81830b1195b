// Package monitor implements the post-resurrection monitor: a
// dedicated probe loop per resurrection request that watches health and
// resource metrics for a fixed window and can trigger a rollback if the
// module never stabilizes.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// RollbackCallback is invoked when a monitoring session decides the
// resurrected module should be rolled back.
type RollbackCallback func(requestID, reason string)

type session struct {
	mu sync.Mutex
	data models.MonitoringSession
	cancel context.CancelFunc
	done chan struct{}
}

// Manager owns one probe loop per active monitoring session.
type Manager struct {
	cfg config.MonitorConfig
	health HealthProbe
	metrics MetricsProbe
	logger agentlog.Logger
	now func() time.Time

	mu sync.Mutex
	sessions map[string]*session
	rollbackCB RollbackCallback
}

// New constructs a Manager. metrics may be nil, in which case only health
// probing runs (no CPU/memory/error-rate anomaly detection).
func New(cfg config.MonitorConfig, health HealthProbe, metrics MetricsProbe, logger agentlog.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		health: health,
		metrics: metrics,
		logger: logger,
		now: time.Now,
		sessions: make(map[string]*session),
	}
}

// OnRollback registers the callback fired when ShouldRollback's gate trips
// inside the running probe loop.
func (m *Manager) OnRollback(cb RollbackCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCB = cb
}

// StartMonitoring begins a probe loop for request and returns its monitor
// ID. durationMinutes <= 0 uses the configured default. The loop runs until
// ends_at, an explicit StopMonitoring, or ctx cancellation.
func (m *Manager) StartMonitoring(ctx context.Context, request models.ResurrectionRequest, durationMinutes int) string {
	if durationMinutes <= 0 {
		durationMinutes = m.cfg.DefaultDurationMinutes
	}
	if durationMinutes <= 0 {
		durationMinutes = 30
	}
	now := m.now().UTC()
	monitorID := uuid.NewString()
	sessCtx, cancel := context.WithCancel(ctx)

	sess := &session{
		data: models.MonitoringSession{
			MonitorID: monitorID,
			RequestID: request.RequestID,
			TargetModule: request.TargetModule,
			TargetInstanceID: request.TargetInstanceID,
			StartedAt: now,
			DurationMinutes: durationMinutes,
			EndsAt: now.Add(time.Duration(durationMinutes) * time.Minute),
			HealthStatus: models.HealthUnknown,
			Active: true,
			MetricsHistoryCap: m.cfg.MetricsHistoryCapacity,
		},
		cancel: cancel,
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[monitorID] = sess
	m.mu.Unlock()

	go m.runSession(sessCtx, sess)
	return monitorID
}

// StopMonitoring cancels monitorID's probe loop, waits for it to finalize,
// and returns the resulting report.
func (m *Manager) StopMonitoring(monitorID string) (models.MonitoringSession, error) {
	m.mu.Lock()
	sess, ok := m.sessions[monitorID]
	m.mu.Unlock()
	if !ok {
		return models.MonitoringSession{}, fmt.Errorf("monitor: unknown monitor_id %q", monitorID)
	}
	sess.cancel()
	<-sess.done

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.data, nil
}

// Report returns a snapshot of monitorID's current state without stopping
// it.
func (m *Manager) Report(monitorID string) (models.MonitoringSession, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[monitorID]
	m.mu.Unlock()
	if !ok {
		return models.MonitoringSession{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.data, true
}

// CheckHealth runs a one-off health probe outside any monitoring session.
func (m *Manager) CheckHealth(ctx context.Context, module, instanceID string) (models.HealthCheckResult, error) {
	return m.health.Probe(ctx, module, instanceID)
}

// ShouldRollback evaluates the rollback gate against monitorID's current
// state.
func (m *Manager) ShouldRollback(monitorID string) (bool, string, error) {
	m.mu.Lock()
	sess, ok := m.sessions[monitorID]
	m.mu.Unlock()
	if !ok {
		return false, "", fmt.Errorf("monitor: unknown monitor_id %q", monitorID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	should, reason := evaluateRollback(sess.data, m.cfg.MaxConsecutiveFailures)
	return should, reason, nil
}

func (m *Manager) runSession(ctx context.Context, sess *session) {
	defer close(sess.done)
	interval := m.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		sess.mu.Lock()
		endsAt := sess.data.EndsAt
		sess.mu.Unlock()

		if !m.now().UTC().Before(endsAt) {
			m.finalizeGraceful(sess)
			return
		}
		select {
		case <-ctx.Done():
			m.finalizeGraceful(sess)
			return
		default:
		}

		m.probeOnce(ctx, sess)

		sess.mu.Lock()
		rollback, reason := evaluateRollback(sess.data, m.cfg.MaxConsecutiveFailures)
		sess.mu.Unlock()
		if rollback {
			m.finalizeRollback(sess, reason)
			return
		}

		select {
		case <-ctx.Done():
			m.finalizeGraceful(sess)
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) probeOnce(ctx context.Context, sess *session) {
	result, err := m.health.Probe(ctx, sess.data.TargetModule, sess.data.TargetInstanceID)
	if err != nil {
		result = models.HealthCheckResult{Error: err.Error()}
	}
	status := result.Status()
	now := m.now().UTC()

	sess.mu.Lock()
	sess.data.HealthStatus = status
	sess.data.TotalHealthChecks++
	switch status {
	case models.HealthUnhealthy:
		sess.data.ConsecutiveFailures++
		severity := 0.5 + 0.1*float64(sess.data.ConsecutiveFailures)
		if severity > 1.0 {
			severity = 1.0
		}
		sess.data.Anomalies = append(sess.data.Anomalies, models.Anomaly{
			Type: "HEALTH_CHECK_FAIL", Severity: severity, DetectedAt: now, Detail: result.Error,
		})
	default:
		sess.data.ConsecutiveFailures = 0
		if status == models.HealthHealthy || status == models.HealthDegraded {
			sess.data.PassedHealthChecks++
		}
	}
	sess.mu.Unlock()

	if m.metrics == nil {
		return
	}
	snap, err := m.metrics.Sample(ctx, sess.data.TargetModule, sess.data.TargetInstanceID)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("metrics probe failed", agentlog.Fields{"module": sess.data.TargetModule, "error": err.Error()})
		}
		return
	}

	sess.mu.Lock()
	sess.data.RecordMetrics(snap)
	detectMetricAnomalies(&sess.data, snap, now)
	sess.mu.Unlock()
}

func detectMetricAnomalies(data *models.MonitoringSession, snap models.MetricsSnapshot, now time.Time) {
	if snap.CPUPercent > 90 {
		data.Anomalies = append(data.Anomalies, models.Anomaly{
			Type: "CPU_SPIKE", Severity: saturate(snap.CPUPercent, 90, 100), DetectedAt: now,
		})
	}
	if snap.MemPercent > 90 {
		data.Anomalies = append(data.Anomalies, models.Anomaly{
			Type: "MEMORY_SPIKE", Severity: saturate(snap.MemPercent, 90, 100), DetectedAt: now,
		})
	}
	if snap.ErrorRate > 0.1 {
		data.Anomalies = append(data.Anomalies, models.Anomaly{
			Type: "ERROR_RATE", Severity: saturate(snap.ErrorRate, 0.1, 1.0), DetectedAt: now,
		})
	}
}

// saturate maps value's distance past threshold (up to max) onto [0.5, 1.0],
// matching the HEALTH_CHECK_FAIL severity curve's starting point.
func saturate(value, threshold, max float64) float64 {
	if max <= threshold {
		return 1.0
	}
	frac := (value - threshold) / (max - threshold)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return 0.5 + 0.5*frac
}

func evaluateRollback(data models.MonitoringSession, maxConsecutiveFailures int) (bool, string) {
	if maxConsecutiveFailures <= 0 {
		maxConsecutiveFailures = 3
	}
	if data.ConsecutiveFailures >= maxConsecutiveFailures {
		return true, "consecutive health check failures reached the configured maximum"
	}
	if data.HasUnresolvedSevereAnomaly(0.9) {
		return true, "unresolved anomaly severity >= 0.9"
	}
	if data.TotalHealthChecks >= 5 && data.PassRate() < 0.5 {
		return true, "health check pass rate fell below 0.5 after 5 checks"
	}
	if data.HasAnomalyType("CRASH_LOOP") {
		return true, "crash loop anomaly detected"
	}
	return false, ""
}

func (m *Manager) finalizeGraceful(sess *session) {
	sess.mu.Lock()
	sess.data.Active = false
	if sess.data.PassRate() >= 0.9 {
		sess.data.Outcome = models.MonitorOutcomeStable
	} else {
		sess.data.Outcome = models.MonitorOutcomeUnstable
	}
	sess.mu.Unlock()
}

func (m *Manager) finalizeRollback(sess *session, reason string) {
	sess.mu.Lock()
	sess.data.Active = false
	sess.data.Outcome = models.MonitorOutcomeRollbackTriggered
	requestID := sess.data.RequestID
	module := sess.data.TargetModule
	sess.mu.Unlock()

	m.mu.Lock()
	cb := m.rollbackCB
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Warn("monitor triggered rollback", agentlog.Fields{
			"request_id": requestID, "module": module, "reason": reason,
		})
	}
	if cb != nil {
		cb(requestID, reason)
	}
}
