package intel

import (
	"context"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
)

// Adapter wraps a Backend with retry and circuit-breaker protection and a
// deterministic fallback context so a slow or down intel service never
// blocks a resurrection decision.
type Adapter struct {
	backend Backend
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  agentlog.Logger
}

// New constructs an Adapter around backend using the standard intel
// retry/breaker defaults.
func New(backend Backend, logger agentlog.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		breaker: resilience.New(resilience.IntelConfig(logger)),
		retry:   resilience.IntelRetryConfig(),
		logger:  logger,
	}
}

// QueryContext retries the backend per the intel retry policy; if every
// attempt fails (including a fast-fail from an open circuit), it returns
// the deterministic fallback context rather than propagating the error, so
// the risk assessor always has a usable input.
func (a *Adapter) QueryContext(ctx context.Context, report models.KillReport) models.IntelContext {
	var result models.IntelContext
	err := resilience.Retry(ctx, a.retry, func(ctx context.Context, attempt int) error {
		return a.breaker.Execute(ctx, func(ctx context.Context) error {
			var queryErr error
			result, queryErr = a.backend.QueryContext(ctx, report)
			return queryErr
		})
	})
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("intel query exhausted retries, using fallback context", agentlog.Fields{
				"kill_id": report.KillID, "error": err.Error(),
			})
		}
		return models.DefaultIntelContext(report.KillID, time.Now().UTC())
	}
	return result
}

// GetHistory returns the module's recorded outcome history, or an empty
// slice on failure (history enrichment is best-effort, never blocking).
func (a *Adapter) GetHistory(ctx context.Context, module string) []models.OutcomeRecord {
	var result []models.OutcomeRecord
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		var queryErr error
		result, queryErr = a.backend.GetHistory(ctx, module)
		return queryErr
	})
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("intel history query failed", agentlog.Fields{"module": module, "error": err.Error()})
		}
		return nil
	}
	return result
}

// ReportOutcome reports a resurrection outcome back to the intel backend,
// best-effort: failures are logged, never surfaced, since the feedback loop
// must not block resurrection completion.
func (a *Adapter) ReportOutcome(ctx context.Context, outcome models.OutcomeRecord) {
	err := a.breaker.Execute(ctx, func(ctx context.Context) error {
		return a.backend.ReportOutcome(ctx, outcome)
	})
	if err != nil && a.logger != nil {
		a.logger.Warn("failed to report outcome to intel backend", agentlog.Fields{
			"kill_id": outcome.KillID, "error": err.Error(),
		})
	}
}

// HealthCheck reports whether the underlying backend is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.backend.HealthCheck(ctx)
}
