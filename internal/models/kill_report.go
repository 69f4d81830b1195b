package models

import (
	"fmt"
	"time"
)

// KillReport is the inbound, immutable record of a module kill notification.
// It is created once on stream receive and destroyed after acknowledgement;
// nothing downstream mutates it.
type KillReport struct {
	KillID string `json:"kill_id"`
	Timestamp time.Time `json:"timestamp"`
	TargetModule string `json:"target_module"`
	TargetInstanceID string `json:"target_instance_id"`
	KillReason KillReason `json:"kill_reason"`
	Severity Severity `json:"severity"`
	ConfidenceScore float64 `json:"confidence_score"`
	Evidence []string `json:"evidence"`
	Dependencies []string `json:"dependencies"`
	SourceAgent string `json:"source_agent"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Validate checks every field invariant. It is called once, at ingestion,
// before the report is handed downstream.
func (k KillReport) Validate() error {
	if k.KillID == "" {
		return fmt.Errorf("kill_id is required")
	}
	if k.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if err := ValidateName("target_module", k.TargetModule); err != nil {
		return err
	}
	if err := ValidateName("target_instance_id", k.TargetInstanceID); err != nil {
		return err
	}
	if _, err := ParseKillReason(string(k.KillReason)); err != nil {
		return err
	}
	if _, err := ParseSeverity(string(k.Severity)); err != nil {
		return err
	}
	if err := ValidateUnitScore("confidence_score", k.ConfidenceScore); err != nil {
		return err
	}
	if err := ValidateEvidence(k.Evidence); err != nil {
		return err
	}
	if err := ValidateDependencies(k.Dependencies); err != nil {
		return err
	}
	if err := ValidateMetadata(k.Metadata); err != nil {
		return err
	}
	if k.SourceAgent == "" {
		return fmt.Errorf("source_agent is required")
	}
	return nil
}

// ThreatIndicator describes one indicator of compromise surfaced by the
// intel backend.
type ThreatIndicator struct {
	Type string `json:"type"`
	Value string `json:"value"`
	ThreatScore float64 `json:"threat_score"`
	Source string `json:"source"`
	LastSeen time.Time `json:"last_seen"`
	Tags []string `json:"tags"`
}

// IntelContext is the enrichment returned by the intel backend for a given
// kill report.
type IntelContext struct {
	QueryID string `json:"query_id"`
	KillID string `json:"kill_id"`
	Timestamp time.Time `json:"timestamp"`
	ThreatIndicators []ThreatIndicator `json:"threat_indicators"`
	HistoricalBehavior map[string]interface{} `json:"historical_behavior"`
	FalsePositiveHistory int `json:"false_positive_history"`
	NetworkContext map[string]interface{} `json:"network_context"`
	UserContext map[string]interface{} `json:"user_context,omitempty"`
	RiskScore float64 `json:"risk_score"`
	Recommendation string `json:"recommendation"`
}

// DefaultIntelContext returns the deterministic fallback context used when
// the intel backend is unreachable after all retries:
// risk_score 0.5, no indicators, zero FP history, manual review recommended.
func DefaultIntelContext(killID string, now time.Time) IntelContext {
	return IntelContext{
		QueryID: "default-" + killID,
		KillID: killID,
		Timestamp: now,
		ThreatIndicators: nil,
		HistoricalBehavior: map[string]interface{}{},
		FalsePositiveHistory: 0,
		NetworkContext: map[string]interface{}{},
		RiskScore: 0.5,
		Recommendation: "manual_review_recommended",
	}
}

// MaxThreatScore returns the maximum threat_score across all indicators, or
// 0 if there are none, as used by the risk assessor's threat_indicators
// factor.
func (c IntelContext) MaxThreatScore() float64 {
	max := 0.0
	for _, ti := range c.ThreatIndicators {
		if ti.ThreatScore > max {
			max = ti.ThreatScore
		}
	}
	return max
}

// OutcomeRecord is reported back to the intel backend after a resurrection
// rolls back. Resurrections that complete without a rollback are not
// reported.
type OutcomeRecord struct {
	KillID string `json:"kill_id"`
	RequestID string `json:"request_id"`
	Outcome MonitorOutcome `json:"outcome"`
	Reason string `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
