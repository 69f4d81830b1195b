// Package decision implements the decision engine: fuse a
// RiskAssessment with the module blacklist/approval-list policy into a
// ResurrectionDecision, via an 8-step table checked top to bottom.
package decision

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/risk"
)

// Engine computes decisions from risk assessments and policy configuration.
type Engine struct {
	mu sync.RWMutex
	cfg config.DecisionConfig
	assessor *risk.Assessor
	now func() time.Time
}

// New constructs an Engine bound to assessor, using cfg's blacklist/
// approval-list policy.
func New(cfg config.DecisionConfig, assessor *risk.Assessor) *Engine {
	return &Engine{cfg: cfg, assessor: assessor, now: time.Now}
}

// UpdateConfig atomically replaces the engine's policy lists.
func (e *Engine) UpdateConfig(cfg config.DecisionConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// ShouldResurrect computes the decision for report enriched by intelCtx.
// systemPaused reflects the edge-case manager's global pause flag, threaded
// through to the risk assessor's requires_escalation gate.
func (e *Engine) ShouldResurrect(report models.KillReport, intelCtx models.IntelContext, systemPaused bool) models.ResurrectionDecision {
	assessment := e.assessor.Assess(report, intelCtx, systemPaused)
	return e.decide(report, intelCtx, assessment, false)
}

// Observe performs the identical computation as ShouldResurrect but is
// named separately so callers can make explicit that the result must not
// drive downstream side effects.
func (e *Engine) Observe(report models.KillReport, intelCtx models.IntelContext, systemPaused bool) models.ResurrectionDecision {
	assessment := e.assessor.Assess(report, intelCtx, systemPaused)
	return e.decide(report, intelCtx, assessment, true)
}

func (e *Engine) decide(report models.KillReport, intelCtx models.IntelContext, assessment models.RiskAssessment, observerMode bool) models.ResurrectionDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var reasoning []string
	var outcome models.DecisionOutcome

	switch {
	case contains(e.cfg.AlwaysDeny, report.TargetModule):
		outcome = models.OutcomeDeny
		reasoning = append(reasoning, fmt.Sprintf("module %s is in always_deny list", report.TargetModule))
	case contains(e.cfg.AlwaysRequireApproval, report.TargetModule):
		outcome = models.OutcomePendingReview
		reasoning = append(reasoning, fmt.Sprintf("module %s is in always_require_approval list", report.TargetModule))
	case report.KillReason == models.KillReasonManualOverride:
		outcome = models.OutcomeDeny
		reasoning = append(reasoning, "kill_reason is MANUAL_OVERRIDE, operator intent respected")
	case assessment.RiskLevel == models.RiskLevelCritical:
		outcome = models.OutcomeDeny
		reasoning = append(reasoning, "risk_level is CRITICAL")
	case assessment.RiskLevel == models.RiskLevelHigh:
		outcome = models.OutcomePendingReview
		reasoning = append(reasoning, "risk_level is HIGH")
	case assessment.RiskLevel == models.RiskLevelMedium:
		outcome = models.OutcomePendingReview
		reasoning = append(reasoning, "risk_level is MEDIUM")
	default:
		confidence := risk.AggregateConfidence(report, intelCtx)
		isLowRisk := assessment.RiskLevel == models.RiskLevelMinimal || assessment.RiskLevel == models.RiskLevelLow
		if isLowRisk && confidence >= e.cfg.AutoApproveMinConfidence {
			outcome = models.OutcomeApproveAuto
			reasoning = append(reasoning, fmt.Sprintf("risk_level %s with confidence %.2f meets auto-approve threshold %.2f",
				assessment.RiskLevel, confidence, e.cfg.AutoApproveMinConfidence))
		} else {
			outcome = models.OutcomePendingReview
			reasoning = append(reasoning, "no auto-approve rule matched, falling through to manual review")
		}
	}

	reasoning = append(reasoning, fmt.Sprintf("severity=%s", report.Severity))
	reasoning = append(reasoning, fmt.Sprintf("false_positive_history=%d", intelCtx.FalsePositiveHistory))
	reasoning = append(reasoning, topFactors(assessment.Factors)...)

	confidence := risk.AggregateConfidence(report, intelCtx)
	requiresHumanReview := outcome != models.OutcomeApproveAuto
	autoApproveEligible := assessment.AutoApproveEligible

	decisionID := uuid.NewString()
	if observerMode {
		decisionID = "observer-" + decisionID
	}

	return models.ResurrectionDecision{
		DecisionID: decisionID,
		KillID: report.KillID,
		Timestamp: e.now().UTC(),
		Outcome: outcome,
		RiskLevel: assessment.RiskLevel,
		RiskScore: assessment.RiskScore,
		Confidence: confidence,
		Reasoning: reasoning,
		RecommendedAction: recommendedAction(outcome),
		RequiresHumanReview: requiresHumanReview,
		AutoApproveEligible: autoApproveEligible,
		TimeoutMinutes: 30,
	}
}

func recommendedAction(outcome models.DecisionOutcome) string {
	switch outcome {
	case models.OutcomeApproveAuto:
		return "resurrect_automatically"
	case models.OutcomeApproveManual:
		return "resurrect_with_operator_approval"
	case models.OutcomePendingReview:
		return "queue_for_operator_review"
	case models.OutcomeDeny:
		return "do_not_resurrect"
	default:
		return "defer_decision"
	}
}

// topFactors returns human-readable strings for the two largest weighted
// contributors, for the reasoning array's "top factor contributors" entry.
func topFactors(factors []models.RiskFactor) []string {
	sorted := append([]models.RiskFactor(nil), factors...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].WeightedScore > sorted[j-1].WeightedScore; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	n := 2
	if len(sorted) < n {
		n = len(sorted)
	}
	out := make([]string, 0, n)
	for _, f := range sorted[:n] {
		out = append(out, fmt.Sprintf("top factor %s contributed %.3f", f.Name, f.WeightedScore))
	}
	return out
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
