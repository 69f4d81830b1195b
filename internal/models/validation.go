package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// namePattern is the module/instance-name charset.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,254}$`)

// ValidateName rejects module/instance names that don't match the allowed
// charset, or that contain path-traversal or NUL bytes.
func ValidateName(field, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%s %q does not match required pattern", field, name)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%s %q contains forbidden characters", field, name)
	}
	return nil
}

// ValidateUnitScore rejects scores outside the closed interval [0,1].
func ValidateUnitScore(field string, v float64) error {
	if v < 0.0 || v > 1.0 {
		return fmt.Errorf("%s %v is outside [0,1]", field, v)
	}
	return nil
}

const (
	maxEvidenceItems = 100
	maxEvidenceBytes = 10 * 1024
	maxDependencies = 100
	maxMetadataBytes = 100 * 1024
)

// ValidateEvidence enforces the ≤100 items / ≤10 KB-per-item bound.
func ValidateEvidence(evidence []string) error {
	if len(evidence) > maxEvidenceItems {
		return fmt.Errorf("evidence has %d items, exceeds max %d", len(evidence), maxEvidenceItems)
	}
	for i, e := range evidence {
		if len(e) > maxEvidenceBytes {
			return fmt.Errorf("evidence[%d] is %d bytes, exceeds max %d", i, len(e), maxEvidenceBytes)
		}
	}
	return nil
}

// ValidateDependencies enforces the ≤100 dependency bound and validates each
// dependency name.
func ValidateDependencies(deps []string) error {
	if len(deps) > maxDependencies {
		return fmt.Errorf("dependencies has %d items, exceeds max %d", len(deps), maxDependencies)
	}
	for _, d := range deps {
		if err := ValidateName("dependency", d); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMetadata enforces the ≤100 KB serialized-size bound.
func ValidateMetadata(metadata map[string]interface{}) error {
	if metadata == nil {
		return nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("metadata is not JSON-serializable: %w", err)
	}
	if len(b) > maxMetadataBytes {
		return fmt.Errorf("metadata is %d bytes, exceeds max %d", len(b), maxMetadataBytes)
	}
	return nil
}
