// Package risk implements the weighted risk assessor: a pure
// function of a KillReport, its IntelContext, and the current weight/
// threshold configuration, producing a RiskAssessment.
package risk

import (
	"sync"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Assessor computes RiskAssessments from the configured weights and
// thresholds. Updates to the configuration are atomic and visible on the
// next Assess call ("reload-visible" configuration).
type Assessor struct {
	mu  sync.RWMutex
	cfg config.RiskConfig
}

// New constructs an Assessor with the given initial configuration.
func New(cfg config.RiskConfig) *Assessor {
	return &Assessor{cfg: cfg}
}

// UpdateConfig atomically replaces the assessor's weights and thresholds.
func (a *Assessor) UpdateConfig(cfg config.RiskConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

// GetConfig returns the assessor's current configuration.
func (a *Assessor) GetConfig() config.RiskConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Assess computes the RiskAssessment for report enriched by intelCtx, and
// whether a system-wide pause is currently active (which alone forces
// requires_escalation).
func (a *Assessor) Assess(report models.KillReport, intelCtx models.IntelContext, systemPaused bool) models.RiskAssessment {
	cfg := a.GetConfig()

	factors := []models.RiskFactor{
		weighted("killer_confidence", report.ConfidenceScore, cfg.WeightKillerConfidence),
		weighted("intel_risk", intelCtx.RiskScore, cfg.WeightIntelRisk),
		weighted("false_positive_history", falsePositiveRaw(intelCtx.FalsePositiveHistory), cfg.WeightFalsePositiveHistory),
		weighted("module_criticality", moduleCriticalityRaw(report.TargetModule, cfg.CriticalModules), cfg.WeightModuleCriticality),
		weighted("severity", report.Severity.RawScore(), cfg.WeightSeverity),
		weighted("dependency_pressure", dependencyPressureRaw(len(report.Dependencies)), cfg.WeightDependencyPressure),
		weighted("threat_indicators", intelCtx.MaxThreatScore(), cfg.WeightThreatIndicators),
	}

	score := 0.0
	for _, f := range factors {
		score += f.WeightedScore
	}
	score = clamp01(score)

	level := models.LevelForScore(score, cfg.ThresholdMinimal, cfg.ThresholdLow, cfg.ThresholdMedium, cfg.ThresholdHigh)

	aggregateConfidence := AggregateConfidence(report, intelCtx)
	autoApproveEligible := (level == models.RiskLevelMinimal || level == models.RiskLevelLow) && aggregateConfidence >= 0.8
	requiresEscalation := level == models.RiskLevelCritical || systemPaused

	return models.RiskAssessment{
		RiskScore: score,
		RiskLevel: level,
		Factors: factors,
		AutoApproveEligible: autoApproveEligible,
		RequiresEscalation: requiresEscalation,
	}
}

func weighted(name string, raw, weight float64) models.RiskFactor {
	raw = clamp01(raw)
	return models.RiskFactor{Name: name, RawScore: raw, Weight: weight, WeightedScore: raw * weight}
}

// falsePositiveRaw implements the inverted false-positive-history factor:
// a larger history lowers the raw score.
func falsePositiveRaw(fpHistory int) float64 {
	raw := 1.0 - float64(fpHistory)/10.0
	if raw < 0 {
		raw = 0
	}
	return raw
}

func moduleCriticalityRaw(module string, criticalModules []string) float64 {
	for _, m := range criticalModules {
		if m == module {
			return 1.0
		}
	}
	return 0.4
}

func dependencyPressureRaw(depCount int) float64 {
	raw := float64(depCount) * 0.1
	if raw > 1.0 {
		raw = 1.0
	}
	return raw
}

// AggregateConfidence derives a confidence figure from agreement between
// killer confidence, intel recommendation, and FP history:
// absence of corroborating signal lowers confidence rather than raising it.
func AggregateConfidence(report models.KillReport, intelCtx models.IntelContext) float64 {
	c := report.ConfidenceScore
	if intelCtx.Recommendation == "manual_review_recommended" {
		c -= 0.1
	}
	if intelCtx.FalsePositiveHistory > 0 {
		c -= 0.05 * float64(intelCtx.FalsePositiveHistory)
	}
	return clamp01(c)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
