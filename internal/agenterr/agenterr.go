// Package agenterr defines the agent's error taxonomy: a closed set of error
// Kinds (connection, timeout, validation, authorization, rate_limit,
// internal, external, configuration) and a structured AgentError that wraps
// an underlying cause with an operation, kind, and optional entity ID.
//
// The taxonomy drives two downstream decisions: whether a circuit breaker's
// ErrorClassifier should count a failure against its threshold, and whether
// the enclosing pipeline stage should retry or simply record-and-continue.
// Recoverable kinds (connection, timeout, rate_limit, external) are retried
// by their owning component; irrecoverable kinds (validation, authorization,
// internal, configuration) bubble up and are never retried.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error categories.
type Kind string

const (
	KindConnection Kind = "connection"
	KindTimeout Kind = "timeout"
	KindValidation Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindRateLimit Kind = "rate_limit"
	KindInternal Kind = "internal"
	KindExternal Kind = "external"
	KindConfiguration Kind = "configuration"
)

// Recoverable reports whether errors of this kind are retryable.
func (k Kind) Recoverable() bool {
	switch k {
	case KindConnection, KindTimeout, KindRateLimit, KindExternal:
		return true
	default:
		return false
	}
}

// Sentinel errors for errors.Is comparisons that don't need extra context.
var (
	ErrNotFound = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrExpired = errors.New("expired")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotPending = errors.New("not in pending state")
	ErrCircuitOpen = errors.New("circuit breaker open")
	ErrNoResponse = errors.New("no response received")
	ErrShuttingDown = errors.New("component shutting down")
)

// AgentError is the structured error type used across the agent. It
// implements Unwrap so callers can still use errors.Is/errors.As against
// both the sentinel errors above and the wrapped cause.
type AgentError struct {
	Op string // operation that failed, e.g. "ingester.Listen"
	Kind Kind
	ID string // optional entity id, e.g. a kill_id or request_id
	Message string
	Err error
}

func (e *AgentError) Error() string {
	switch {
	case e.Op != "" && e.ID != "" && e.Err != nil:
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.ID, e.Message, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *AgentError) Unwrap() error { return e.Err }

// New constructs an AgentError.
func New(op string, kind Kind, message string, err error) *AgentError {
	return &AgentError{Op: op, Kind: kind, Message: message, Err: err}
}

// WithID attaches an entity id and returns the same error for chaining.
func (e *AgentError) WithID(id string) *AgentError {
	e.ID = id
	return e
}

// KindOf extracts the Kind carried by err, if any, walking the Unwrap chain.
func KindOf(err error) (Kind, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsRecoverable reports whether err should be retried by its owning
// component rather than bubbled up as a terminal failure.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if k, ok := KindOf(err); ok {
		return k.Recoverable()
	}
	// Errors with no taxonomy (e.g. plain stdlib errors from a fake in
	// tests) are treated as non-recoverable so tests fail loudly instead
	// of retrying silently.
	return false
}

// IsValidation reports whether err is a validation failure (reject at the
// boundary, never retry, never act).
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}
