package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

func defaultReport(confidence float64, severity models.Severity, fpHistory int) (models.KillReport, models.IntelContext) {
	report := models.KillReport{
		KillID:           "k1",
		Timestamp:        time.Now().UTC(),
		TargetModule:     "payments",
		TargetInstanceID: "payments-0",
		KillReason:       models.KillReasonAnomalyBehavior,
		Severity:         severity,
		ConfidenceScore:  confidence,
		SourceAgent:      "killer-1",
		Metadata:         map[string]interface{}{},
	}
	intelCtx := models.IntelContext{
		FalsePositiveHistory: fpHistory,
		RiskScore:            0.15,
		Recommendation:       "proceed",
	}
	return report, intelCtx
}

func TestAssessS1AutoApprove(t *testing.T) {
	a := New(config.Default().Risk)
	report, intelCtx := defaultReport(0.5, models.SeverityLow, 5)
	result := a.Assess(report, intelCtx, false)

	assert.Contains(t, []models.RiskLevel{models.RiskLevelMinimal, models.RiskLevelLow}, result.RiskLevel)
	assert.True(t, result.RiskScore < 0.4)
}

func TestAssessS2HardDeny(t *testing.T) {
	a := New(config.Default().Risk)
	report, intelCtx := defaultReport(0.95, models.SeverityCritical, 0)
	intelCtx.RiskScore = 0.98
	intelCtx.ThreatIndicators = []models.ThreatIndicator{{ThreatScore: 0.9}}

	result := a.Assess(report, intelCtx, false)

	assert.Equal(t, models.RiskLevelCritical, result.RiskLevel)
	assert.True(t, result.RequiresEscalation)
}

func TestFalsePositiveHistoryMonotonicallyLowersRisk(t *testing.T) {
	a := New(config.Default().Risk)
	report1, intel1 := defaultReport(0.6, models.SeverityMedium, 1)
	report2, intel2 := defaultReport(0.6, models.SeverityMedium, 8)

	r1 := a.Assess(report1, intel1, false)
	r2 := a.Assess(report2, intel2, false)

	assert.LessOrEqual(t, r2.RiskScore, r1.RiskScore)
}

func TestKillerConfidenceMonotonicallyRaisesRisk(t *testing.T) {
	a := New(config.Default().Risk)
	reportLow, intelLow := defaultReport(0.1, models.SeverityMedium, 0)
	reportHigh, intelHigh := defaultReport(0.9, models.SeverityMedium, 0)

	rLow := a.Assess(reportLow, intelLow, false)
	rHigh := a.Assess(reportHigh, intelHigh, false)

	assert.LessOrEqual(t, rLow.RiskScore, rHigh.RiskScore)
}

func TestRequiresEscalationWhenSystemPaused(t *testing.T) {
	a := New(config.Default().Risk)
	report, intelCtx := defaultReport(0.2, models.SeverityLow, 5)

	result := a.Assess(report, intelCtx, true)
	assert.True(t, result.RequiresEscalation)
}

func TestUpdateConfigIsVisibleImmediately(t *testing.T) {
	a := New(config.Default().Risk)
	cfg := a.GetConfig()
	cfg.ThresholdMinimal = 0.9
	a.UpdateConfig(cfg)

	report, intelCtx := defaultReport(0.1, models.SeverityInfo, 0)
	result := a.Assess(report, intelCtx, false)

	assert.Equal(t, models.RiskLevelMinimal, result.RiskLevel)
}
