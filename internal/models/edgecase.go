package models

import "time"

// EdgeCase is a detected anomalous kill-stream pattern.
type EdgeCase struct {
	Type EdgeCaseType `json:"type"`
	Severity EdgeCaseSeverity `json:"severity"`
	DetectedAt time.Time `json:"detected_at"`
	AffectedModules []string `json:"affected_modules"`
	AffectedKillIDs []string `json:"affected_kill_ids"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Resolved bool `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// NegotiationMessage is one entry in a Negotiation transcript.
type NegotiationMessage struct {
	SentAt time.Time `json:"sent_at"`
	Direction string `json:"direction"` // "outbound" | "inbound"
	Kind string `json:"kind"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Negotiation tracks one request/reply exchange with the Killer.
type Negotiation struct {
	NegotiationID string `json:"negotiation_id"`
	Type NegotiationType `json:"type"`
	State NegotiationState `json:"state"`
	InitiatedBy string `json:"initiated_by"`
	Subject map[string]interface{} `json:"subject,omitempty"`
	Messages []NegotiationMessage `json:"messages"`
	Outcome *NegotiationOutcome `json:"outcome,omitempty"`
}

// VetoRequest is a prospective-kill consultation from the Killer.
type VetoRequest struct {
	KillID string `json:"kill_id"`
	TargetModule string `json:"target_module"`
	KillerConfidence float64 `json:"killer_confidence"`
	Dependencies []string `json:"dependencies"`
}

// VetoResponse is the agent's answer to a VetoRequest.
type VetoResponse struct {
	Decision VetoDecision `json:"decision"`
	Reasons []string `json:"reasons,omitempty"`
	DelaySeconds int `json:"delay_seconds,omitempty"`
	Conditions map[string]interface{} `json:"conditions,omitempty"`
}

// Attempt is the result of an auto-resurrection admission attempt.
type Attempt struct {
	Result AttemptResult `json:"result"`
	Reason string `json:"reason,omitempty"`
	Request *ResurrectionRequest `json:"request,omitempty"`
	MonitorID string `json:"monitor_id,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}
