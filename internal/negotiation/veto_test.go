package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

type fakeProvider struct {
	fpHistory int
	riskScore float64
}

func (f fakeProvider) FalsePositiveHistory(ctx context.Context, module string) (int, error) {
	return f.fpHistory, nil
}
func (f fakeProvider) RiskScore(ctx context.Context, module string) (float64, error) {
	return f.riskScore, nil
}

func vetoConfig() config.VetoConfig {
	return config.VetoConfig{
		Enabled: true, MinFPForVeto: 3, MaxRiskForVeto: 0.3, MaxVetosPerHour: 10,
		VetoCooldownSeconds: 300 * time.Second, RecentResurrectionWindow: time.Hour,
		CriticalDependencyThreshold: 6,
	}
}

func TestHandleVetoRequestDisabledAlwaysApproves(t *testing.T) {
	cfg := vetoConfig()
	cfg.Enabled = false
	v := NewVetoManager(cfg, fakeProvider{}, nil)

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{TargetModule: "payments"})
	assert.Equal(t, models.VetoApproveKill, resp.Decision)
}

func TestHandleVetoRequestHighConfidenceOverridesVeto(t *testing.T) {
	v := NewVetoManager(vetoConfig(), fakeProvider{fpHistory: 5, riskScore: 0.1}, nil)

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{
		TargetModule: "payments", KillerConfidence: 0.95, Dependencies: make([]string, 7),
	})
	assert.Equal(t, models.VetoApproveKill, resp.Decision)
}

func TestHandleVetoRequestTwoReasonsVetoes(t *testing.T) {
	v := NewVetoManager(vetoConfig(), fakeProvider{fpHistory: 5, riskScore: 0.1}, nil)

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{
		TargetModule: "payments", KillerConfidence: 0.5,
	})
	assert.Equal(t, models.VetoVeto, resp.Decision)
	assert.GreaterOrEqual(t, len(resp.Reasons), 2)
}

func TestHandleVetoRequestSingleReasonDelays(t *testing.T) {
	v := NewVetoManager(vetoConfig(), fakeProvider{fpHistory: 5, riskScore: 0.9}, nil)

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{
		TargetModule: "payments", KillerConfidence: 0.5,
	})
	assert.Equal(t, models.VetoDelay, resp.Decision)
	assert.Equal(t, 30, resp.DelaySeconds)
}

func TestHandleVetoRequestNoReasonsConditional(t *testing.T) {
	v := NewVetoManager(vetoConfig(), fakeProvider{fpHistory: 0, riskScore: 0.9}, nil)

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{
		TargetModule: "payments", KillerConfidence: 0.5,
	})
	assert.Equal(t, models.VetoConditional, resp.Decision)
}

func TestHandleVetoRequestRateLimitedFallsBackToApprove(t *testing.T) {
	cfg := vetoConfig()
	cfg.MaxVetosPerHour = 1
	v := NewVetoManager(cfg, fakeProvider{fpHistory: 5, riskScore: 0.1}, nil)

	req := models.VetoRequest{TargetModule: "payments", KillerConfidence: 0.5}
	first := v.HandleVetoRequest(context.Background(), req)
	assert.Equal(t, models.VetoVeto, first.Decision)

	second := v.HandleVetoRequest(context.Background(), models.VetoRequest{TargetModule: "billing", KillerConfidence: 0.5, Dependencies: nil})
	// billing has no independent reasons collected (fake provider reasons are module-agnostic here),
	// so with the global rate limit exhausted this still would-have-vetoed and must approve.
	assert.Equal(t, models.VetoApproveKill, second.Decision)
	assert.Equal(t, true, second.Conditions["would_have_vetoed"])
}

func TestRecordSuccessfulResurrectionAddsReason(t *testing.T) {
	v := NewVetoManager(vetoConfig(), fakeProvider{fpHistory: 0, riskScore: 0.9}, nil)
	v.RecordSuccessfulResurrection("payments", time.Now())

	resp := v.HandleVetoRequest(context.Background(), models.VetoRequest{TargetModule: "payments", KillerConfidence: 0.5})
	assert.Contains(t, resp.Reasons, "recent_successful_resurrection")
}
