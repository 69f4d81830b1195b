package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/risk"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	assessor := risk.New(cfg.Risk)
	return New(cfg.Decision, assessor)
}

func TestS1AutoApprove(t *testing.T) {
	e := newEngine(t)
	report := models.KillReport{
		KillID: "k1", Timestamp: time.Now().UTC(), TargetModule: "payments",
		TargetInstanceID: "payments-0", KillReason: models.KillReasonAnomalyBehavior,
		Severity: models.SeverityLow, ConfidenceScore: 0.95, SourceAgent: "killer-1",
		Metadata: map[string]interface{}{},
	}
	intelCtx := models.IntelContext{FalsePositiveHistory: 5, RiskScore: 0.15, Recommendation: "proceed"}

	d := e.ShouldResurrect(report, intelCtx, false)

	require.Contains(t, []models.RiskLevel{models.RiskLevelMinimal, models.RiskLevelLow}, d.RiskLevel)
	assert.Equal(t, models.OutcomeApproveAuto, d.Outcome)
	assert.True(t, d.AutoApproveEligible)
	assert.NotEmpty(t, d.Reasoning)
}

func TestS2HardDeny(t *testing.T) {
	e := newEngine(t)
	report := models.KillReport{
		KillID: "k2", Timestamp: time.Now().UTC(), TargetModule: "auth",
		TargetInstanceID: "auth-0", KillReason: models.KillReasonThreatDetected,
		Severity: models.SeverityCritical, ConfidenceScore: 0.95, SourceAgent: "killer-1",
		Metadata: map[string]interface{}{},
	}
	intelCtx := models.IntelContext{
		RiskScore:        0.98,
		ThreatIndicators: []models.ThreatIndicator{{ThreatScore: 0.9}},
	}

	d := e.ShouldResurrect(report, intelCtx, false)

	assert.Equal(t, models.OutcomeDeny, d.Outcome)
	assert.Equal(t, models.RiskLevelCritical, d.RiskLevel)
}

func TestManualOverrideAlwaysDenies(t *testing.T) {
	e := newEngine(t)
	report := models.KillReport{
		KillID: "k3", Timestamp: time.Now().UTC(), TargetModule: "billing",
		TargetInstanceID: "billing-0", KillReason: models.KillReasonManualOverride,
		Severity: models.SeverityLow, ConfidenceScore: 0.1, SourceAgent: "operator",
		Metadata: map[string]interface{}{},
	}
	d := e.ShouldResurrect(report, models.IntelContext{}, false)
	assert.Equal(t, models.OutcomeDeny, d.Outcome)
}

func TestAlwaysDenyListTakesPrecedence(t *testing.T) {
	cfg := config.Default()
	cfg.Decision.AlwaysDeny = []string{"dangerous-module"}
	assessor := risk.New(cfg.Risk)
	e := New(cfg.Decision, assessor)

	report := models.KillReport{
		KillID: "k4", Timestamp: time.Now().UTC(), TargetModule: "dangerous-module",
		TargetInstanceID: "d-0", KillReason: models.KillReasonAnomalyBehavior,
		Severity: models.SeverityLow, ConfidenceScore: 0.99, SourceAgent: "killer-1",
		Metadata: map[string]interface{}{},
	}
	intelCtx := models.IntelContext{RiskScore: 0.01}

	d := e.ShouldResurrect(report, intelCtx, false)
	assert.Equal(t, models.OutcomeDeny, d.Outcome)
	assert.Contains(t, d.Reasoning[0], "always_deny")
}

func TestObserverModeDecisionIDIsTagged(t *testing.T) {
	e := newEngine(t)
	report := models.KillReport{
		KillID: "k5", Timestamp: time.Now().UTC(), TargetModule: "payments",
		TargetInstanceID: "payments-0", KillReason: models.KillReasonAnomalyBehavior,
		Severity: models.SeverityLow, ConfidenceScore: 0.9, SourceAgent: "killer-1",
		Metadata: map[string]interface{}{},
	}
	d := e.Observe(report, models.IntelContext{RiskScore: 0.1}, false)
	assert.Contains(t, d.DecisionID, "observer-")
}
