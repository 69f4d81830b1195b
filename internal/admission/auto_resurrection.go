// Package admission implements the auto-resurrection manager:
// an ordered sequence of eligibility gates gating automatic resurrection
// attempts, with rate-limiting and cooldown bookkeeping under a single
// mutex.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/executor"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// EdgeCaseGate reports whether the edge-case manager currently forbids
// auto-resurrection for module, the 11th eligibility gate.
type EdgeCaseGate func(module string) bool

// MonitorStarter starts a post-resurrection monitoring session for request,
// returning its monitor ID.
type MonitorStarter func(request models.ResurrectionRequest) string

// Manager gates and executes automatic resurrection attempts.
type Manager struct {
	cfg config.AdmissionConfig
	executor *executor.Executor
	edgeCase EdgeCaseGate
	startMonitor MonitorStarter
	logger agentlog.Logger
	now func() time.Time

	mu sync.Mutex
	attemptTimestamps []time.Time
	moduleTimestamps map[string][]time.Time
	lastSuccessAt map[string]time.Time
	history []models.Attempt
}

// New constructs a Manager. edgeCase and startMonitor may be nil, in which
// case gate 11 always passes and no monitoring session is started on
// success.
func New(cfg config.AdmissionConfig, exec *executor.Executor, edgeCase EdgeCaseGate, startMonitor MonitorStarter, logger agentlog.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		executor: exec,
		edgeCase: edgeCase,
		startMonitor: startMonitor,
		logger: logger,
		now: time.Now,
		moduleTimestamps: make(map[string][]time.Time),
		lastSuccessAt: make(map[string]time.Time),
	}
}

// UpdateConfig atomically replaces the manager's gate thresholds.
func (m *Manager) UpdateConfig(cfg config.AdmissionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// AttemptResurrection runs the 11 eligibility gates in order, short-
// circuiting on the first failure, and on pass executes the resurrection.
func (m *Manager) AttemptResurrection(ctx context.Context, report models.KillReport, decision models.ResurrectionDecision, assessment models.RiskAssessment) models.Attempt {
	m.mu.Lock()
	now := m.now().UTC()

	attempt := m.checkGatesLocked(report, decision, assessment, now)
	if attempt.Result != models.AttemptSuccess {
		m.recordLocked(attempt)
		m.mu.Unlock()
		return attempt
	}

	request := models.ResurrectionRequest{
		RequestID: uuid.NewString(),
		DecisionID: decision.DecisionID,
		KillID: report.KillID,
		TargetModule: report.TargetModule,
		TargetInstanceID: report.TargetInstanceID,
		Status: models.StatusApproved,
		CreatedAt: now,
		ApprovedAt: &now,
		ApprovedBy: "auto",
	}
	m.mu.Unlock()

	result, err := m.executor.Resurrect(ctx, &request)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil || !result.Success {
		attempt = models.Attempt{
			Result: models.AttemptFailed, Reason: errMessage(err, result.Message),
			Request: &request, AttemptedAt: now,
		}
		m.recordLocked(attempt)
		return attempt
	}

	m.attemptTimestamps = append(m.attemptTimestamps, now)
	m.moduleTimestamps[report.TargetModule] = append(m.moduleTimestamps[report.TargetModule], now)
	m.lastSuccessAt[report.TargetModule] = now

	var monitorID string
	if m.startMonitor != nil {
		monitorID = m.startMonitor(request)
	}

	attempt = models.Attempt{
		Result: models.AttemptSuccess, Request: &request, MonitorID: monitorID, AttemptedAt: now,
	}
	m.recordLocked(attempt)
	return attempt
}

func (m *Manager) checkGatesLocked(report models.KillReport, decision models.ResurrectionDecision, assessment models.RiskAssessment, now time.Time) models.Attempt {
	fail := func(result models.AttemptResult, reason string) models.Attempt {
		return models.Attempt{Result: result, Reason: reason, AttemptedAt: now}
	}

	if !m.cfg.Enabled {
		return fail(models.AttemptNotEligible, "auto-resurrection manager disabled")
	}
	if contains(m.cfg.Blacklist, report.TargetModule) {
		return fail(models.AttemptBlacklisted, "module is blacklisted")
	}
	if decision.Outcome != models.OutcomeApproveAuto {
		return fail(models.AttemptNotEligible, "decision outcome is not APPROVE_AUTO")
	}
	if decision.RiskScore > m.cfg.MaxRiskScore {
		return fail(models.AttemptNotEligible, "risk score exceeds max_risk_score")
	}
	if decision.Confidence < m.cfg.MinConfidence {
		return fail(models.AttemptNotEligible, "confidence below min_confidence")
	}
	if !decision.AutoApproveEligible {
		return fail(models.AttemptNotEligible, "decision is not auto_approve_eligible")
	}
	if m.countSince(m.attemptTimestamps, now, time.Hour) >= m.cfg.MaxPerHour {
		return fail(models.AttemptRateLimited, "global hourly auto-attempt limit reached")
	}
	if m.countSince(m.moduleTimestamps[report.TargetModule], now, time.Hour) >= m.cfg.MaxPerModulePerHour {
		return fail(models.AttemptRateLimited, "per-module hourly auto-attempt limit reached")
	}
	if last, ok := m.lastSuccessAt[report.TargetModule]; ok && now.Sub(last) < m.cfg.CooldownSeconds {
		return fail(models.AttemptCooldown, "module is in cooldown since last successful resurrection")
	}
	if assessment.RequiresEscalation {
		return fail(models.AttemptNotEligible, "risk assessment requires escalation")
	}
	if m.edgeCase != nil && m.edgeCase(report.TargetModule) {
		return fail(models.AttemptNotEligible, "edge-case manager forbids auto-resurrection for this module")
	}

	return models.Attempt{Result: models.AttemptSuccess, AttemptedAt: now}
}

func (m *Manager) countSince(timestamps []time.Time, now time.Time, window time.Duration) int {
	n := 0
	cutoff := now.Add(-window)
	for _, t := range timestamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// recordLocked appends attempt to the bounded history ring buffer (default
// capacity 1000, see config.AdmissionConfig.HistoryCapacity).
func (m *Manager) recordLocked(attempt models.Attempt) {
	cap := m.cfg.HistoryCapacity
	if cap <= 0 {
		cap = 1000
	}
	m.history = append(m.history, attempt)
	if len(m.history) > cap {
		m.history = m.history[len(m.history)-cap:]
	}
}

// History returns the recorded attempt history, most recent last.
func (m *Manager) History() []models.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Attempt(nil), m.history...)
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func errMessage(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
