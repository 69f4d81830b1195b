package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WireEntry is one raw stream entry: either a "payload" field carrying the
// whole KillReport as a JSON object, or the KillReport's fields flattened
// directly onto the entry, with evidence, dependencies, and metadata
// possibly embedded as JSON strings that must be re-parsed.
type WireEntry map[string]interface{}

// ParseTimestamp accepts ISO-8601, mapping a trailing "Z" to UTC, and
// rejects naive (non-UTC, non-offset) timestamps — UTC is required
// everywhere at the stream boundary.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q: %w", s, err)
	}
	if t.Location() != time.UTC && t.Location().String() != "" {
		// time.Parse already resolved a fixed-offset zone; normalize to UTC.
		t = t.UTC()
	}
	return t, nil
}

// FromWire parses a WireEntry into a validated KillReport.
// Unknown enum values and malformed embedded JSON are rejected, not
// defaulted — the caller (the ingester) is responsible for acknowledging
// and dropping the entry on error without retrying it.
func FromWire(entry WireEntry) (KillReport, error) {
	flat := entry
	if payload, ok := entry["payload"]; ok {
		obj, ok := payload.(map[string]interface{})
		if !ok {
			return KillReport{}, fmt.Errorf("payload field is not a JSON object")
		}
		flat = obj
	}

	get := func(key string) (string, bool) {
		v, ok := flat[key]
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}

	killID, ok := get("kill_id")
	if !ok || killID == "" {
		return KillReport{}, fmt.Errorf("missing required field kill_id")
	}
	tsStr, ok := get("timestamp")
	if !ok {
		return KillReport{}, fmt.Errorf("missing required field timestamp")
	}
	ts, err := ParseTimestamp(tsStr)
	if err != nil {
		return KillReport{}, err
	}
	targetModule, ok := get("target_module")
	if !ok {
		return KillReport{}, fmt.Errorf("missing required field target_module")
	}
	targetInstance, ok := get("target_instance_id")
	if !ok {
		return KillReport{}, fmt.Errorf("missing required field target_instance_id")
	}
	reasonStr, ok := get("kill_reason")
	if !ok {
		return KillReport{}, fmt.Errorf("missing required field kill_reason")
	}
	reason, err := ParseKillReason(reasonStr)
	if err != nil {
		return KillReport{}, err
	}
	sevStr, ok := get("severity")
	if !ok {
		return KillReport{}, fmt.Errorf("missing required field severity")
	}
	severity, err := ParseSeverity(sevStr)
	if err != nil {
		return KillReport{}, err
	}
	confidence, err := numericField(flat, "confidence_score")
	if err != nil {
		return KillReport{}, err
	}
	sourceAgent, ok := get("source_agent")
	if !ok || sourceAgent == "" {
		return KillReport{}, fmt.Errorf("missing required field source_agent")
	}

	evidence, err := stringSliceField(flat, "evidence")
	if err != nil {
		return KillReport{}, fmt.Errorf("evidence: %w", err)
	}
	dependencies, err := stringSliceField(flat, "dependencies")
	if err != nil {
		return KillReport{}, fmt.Errorf("dependencies: %w", err)
	}
	metadata, err := mapField(flat, "metadata")
	if err != nil {
		return KillReport{}, fmt.Errorf("metadata: %w", err)
	}

	report := KillReport{
		KillID: killID,
		Timestamp: ts,
		TargetModule: targetModule,
		TargetInstanceID: targetInstance,
		KillReason: reason,
		Severity: severity,
		ConfidenceScore: confidence,
		Evidence: evidence,
		Dependencies: dependencies,
		SourceAgent: sourceAgent,
		Metadata: metadata,
	}
	if err := report.Validate(); err != nil {
		return KillReport{}, err
	}
	return report, nil
}

// ToWire serializes a KillReport into flattened wire-entry form, the inverse
// of FromWire: ToWire(r) fed back through FromWire reproduces r.
func ToWire(r KillReport) (WireEntry, error) {
	evidenceJSON, err := json.Marshal(r.Evidence)
	if err != nil {
		return nil, err
	}
	depsJSON, err := json.Marshal(r.Dependencies)
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, err
	}
	return WireEntry{
		"kill_id": r.KillID,
		"timestamp": r.Timestamp.UTC().Format(time.RFC3339Nano),
		"target_module": r.TargetModule,
		"target_instance_id": r.TargetInstanceID,
		"kill_reason": string(r.KillReason),
		"severity": string(r.Severity),
		"confidence_score": r.ConfidenceScore,
		"evidence": string(evidenceJSON),
		"dependencies": string(depsJSON),
		"metadata": string(metaJSON),
		"source_agent": r.SourceAgent,
	}, nil
}

func numericField(m map[string]interface{}, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing required field %s", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%f", &f); err != nil {
			return 0, fmt.Errorf("field %s is not numeric: %q", key, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %s has unsupported type %T", key, v)
	}
}

// stringSliceField accepts either a native JSON array or an embedded JSON
// string (flattened wire form) and returns a []string.
func stringSliceField(m map[string]interface{}, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil, nil
		}
		var out []string
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, fmt.Errorf("invalid embedded JSON: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// mapField accepts either a native JSON object or an embedded JSON string
// and returns a map[string]interface{}.
func mapField(m map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return map[string]interface{}{}, nil
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return t, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return map[string]interface{}{}, nil
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return nil, fmt.Errorf("invalid embedded JSON: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
