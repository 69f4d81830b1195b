// Package resilience provides the circuit breaker and retry primitives used
// by the agent's external-facing components: the stream ingester and the
// intel adapter run behind a breaker, the intel adapter and the resurrection
// executor use Retry, and the stream ingester uses Backoff. Breaker behavior is a consecutive-failure,
// fixed-recovery-window model rather than an error-rate sliding window
// (Intel: 5 failures / 60s half-open / 3 successes; Killer stream: 10
// failures / 30s / 5 successes).
package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
)

// State is one of the three circuit breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrorClassifier decides whether an error should count toward the breaker's
// failure threshold. Validation, authorization, and internal errors are
// caller mistakes or programming errors, not infrastructure failures, and
// must not trip the breaker.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier only counts recoverable (infrastructure) errors.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if kind, ok := agenterr.KindOf(err); ok {
		return kind.Recoverable()
	}
	return true
}

// Config configures a CircuitBreaker.
type Config struct {
	Name string
	FailureThreshold int // consecutive failures before opening
	RecoveryTimeout time.Duration // how long to stay open before half-open
	SuccessThreshold int // consecutive half-open successes to close
	Classifier ErrorClassifier
	Logger agentlog.Logger
}

// IntelConfig returns the breaker configuration for the intel adapter:
// open after 5 consecutive failures, half-open after 60s, 3
// successes to close.
func IntelConfig(logger agentlog.Logger) Config {
	return Config{
		Name: "intel",
		FailureThreshold: 5,
		RecoveryTimeout: 60 * time.Second,
		SuccessThreshold: 3,
		Classifier: DefaultErrorClassifier,
		Logger: logger,
	}
}

// StreamConfig returns the breaker configuration for the kill stream:
// 10 failures / 30s / 5 successes.
func StreamConfig(logger agentlog.Logger) Config {
	return Config{
		Name: "kill-stream",
		FailureThreshold: 10,
		RecoveryTimeout: 30 * time.Second,
		SuccessThreshold: 5,
		Classifier: DefaultErrorClassifier,
		Logger: logger,
	}
}

// CircuitBreaker is a consecutive-failure circuit breaker with a half-open
// probation period. It is safe for concurrent use.
type CircuitBreaker struct {
	cfg Config

	mu sync.Mutex
	state State
	consecutiveFails int
	halfOpenSuccess int
	openedAt time.Time
}

// New creates a CircuitBreaker from cfg, filling in defaults for anything
// left zero.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 3
	}
	if cfg.Classifier == nil {
		cfg.Classifier = DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = agentlog.NewNoopLogger()
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// CanExecute reports whether a call would currently be allowed, transitioning
// OPEN -> HALF_OPEN if the recovery timeout has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateHalfOpen {
		cb.halfOpenSuccess = 0
	}
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	if to == StateClosed {
		cb.consecutiveFails = 0
	}
	cb.cfg.Logger.Info("circuit breaker state change", agentlog.Fields{
		"breaker": cb.cfg.Name, "from": from.String(), "to": to.String(),
	})
}

// GetState returns the current state, without side effects.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn under the breaker's protection. If the circuit is open it
// fails fast with agenterr.ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	cb.mu.Lock()
	allowed := cb.canExecuteLocked()
	cb.mu.Unlock()
	if !allowed {
		return agenterr.New("circuitbreaker.Execute", agenterr.KindExternal,
			fmt.Sprintf("%s circuit is open", cb.cfg.Name), agenterr.ErrCircuitOpen)
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	counts := cb.cfg.Classifier(err)
	switch cb.state {
	case StateHalfOpen:
		if counts {
			cb.transition(StateOpen)
		} else {
			cb.halfOpenSuccess++
			if cb.halfOpenSuccess >= cb.cfg.SuccessThreshold {
				cb.transition(StateClosed)
			}
		}
	case StateClosed:
		if counts {
			cb.consecutiveFails++
			if cb.consecutiveFails >= cb.cfg.FailureThreshold {
				cb.transition(StateOpen)
			}
		} else {
			cb.consecutiveFails = 0
		}
	}
	return err
}

// Reset forces the breaker back to the closed state, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.halfOpenSuccess = 0
	cb.transition(StateClosed)
}
