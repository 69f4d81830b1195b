package admission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/executor"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
)

type alwaysSucceedsRestarter struct{}

func (alwaysSucceedsRestarter) Restart(ctx context.Context, module, instanceID string) (executor.Result, error) {
	return executor.Result{Success: true}, nil
}
func (alwaysSucceedsRestarter) Rollback(ctx context.Context, module, instanceID, reason string) (executor.Result, error) {
	return executor.Result{Success: true}, nil
}

func eligibleDecision() (models.KillReport, models.ResurrectionDecision, models.RiskAssessment) {
	report := models.KillReport{KillID: "k1", TargetModule: "payments", TargetInstanceID: "payments-0"}
	decision := models.ResurrectionDecision{
		DecisionID: "d1", Outcome: models.OutcomeApproveAuto, RiskScore: 0.1,
		Confidence: 0.95, AutoApproveEligible: true,
	}
	assessment := models.RiskAssessment{RequiresEscalation: false}
	return report, decision, assessment
}

func newManager() *Manager {
	exec := executor.New(alwaysSucceedsRestarter{}, resilience.RetryConfig{MaxAttempts: 1}, nil)
	cfg := config.Default().Admission
	return New(cfg, exec, nil, nil, nil)
}

func TestAttemptResurrectionSucceedsWhenEligible(t *testing.T) {
	m := newManager()
	report, decision, assessment := eligibleDecision()

	attempt := m.AttemptResurrection(context.Background(), report, decision, assessment)

	assert.Equal(t, models.AttemptSuccess, attempt.Result)
	require.NotNil(t, attempt.Request)
	assert.Equal(t, models.StatusCompleted, attempt.Request.Status)
}

func TestAttemptResurrectionRejectsBlacklistedModule(t *testing.T) {
	m := newManager()
	m.cfg.Blacklist = []string{"payments"}
	report, decision, assessment := eligibleDecision()

	attempt := m.AttemptResurrection(context.Background(), report, decision, assessment)
	assert.Equal(t, models.AttemptBlacklisted, attempt.Result)
}

func TestAttemptResurrectionRejectsNonAutoApproveOutcome(t *testing.T) {
	m := newManager()
	report, decision, assessment := eligibleDecision()
	decision.Outcome = models.OutcomePendingReview

	attempt := m.AttemptResurrection(context.Background(), report, decision, assessment)
	assert.Equal(t, models.AttemptNotEligible, attempt.Result)
}

func TestAttemptResurrectionEnforcesCooldown(t *testing.T) {
	m := newManager()
	report, decision, assessment := eligibleDecision()

	first := m.AttemptResurrection(context.Background(), report, decision, assessment)
	require.Equal(t, models.AttemptSuccess, first.Result)

	second := m.AttemptResurrection(context.Background(), report, decision, assessment)
	assert.Equal(t, models.AttemptCooldown, second.Result)
}

func TestAttemptResurrectionEnforcesPerModuleRateLimit(t *testing.T) {
	m := newManager()
	m.cfg.CooldownSeconds = 0
	m.cfg.MaxPerModulePerHour = 1
	report, decision, assessment := eligibleDecision()

	first := m.AttemptResurrection(context.Background(), report, decision, assessment)
	require.Equal(t, models.AttemptSuccess, first.Result)

	second := m.AttemptResurrection(context.Background(), report, decision, assessment)
	assert.Equal(t, models.AttemptRateLimited, second.Result)
}

func TestAttemptResurrectionRespectsEdgeCaseGate(t *testing.T) {
	exec := executor.New(alwaysSucceedsRestarter{}, resilience.RetryConfig{MaxAttempts: 1}, nil)
	cfg := config.Default().Admission
	m := New(cfg, exec, func(module string) bool { return true }, nil, nil)

	report, decision, assessment := eligibleDecision()
	attempt := m.AttemptResurrection(context.Background(), report, decision, assessment)
	assert.Equal(t, models.AttemptNotEligible, attempt.Result)
}

func TestHistoryIsBounded(t *testing.T) {
	m := newManager()
	m.cfg.HistoryCapacity = 2
	report, decision, assessment := eligibleDecision()
	decision.Outcome = models.OutcomePendingReview // force NOT_ELIGIBLE so no cooldown interferes

	for i := 0; i < 5; i++ {
		m.AttemptResurrection(context.Background(), report, decision, assessment)
	}
	assert.Len(t, m.History(), 2)
}
