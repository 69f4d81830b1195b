// Package intel implements the intel-backend adapter: query
// threat context for a kill report, fetch historical behavior, and report
// resurrection outcomes back, all protected by retry and a circuit breaker
// with a deterministic fallback when the backend is unreachable.
package intel

import (
	"context"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Backend is the intel source an Adapter wraps: an HTTP service in
// production, an in-process fake in tests.
type Backend interface {
	QueryContext(ctx context.Context, report models.KillReport) (models.IntelContext, error)
	GetHistory(ctx context.Context, module string) ([]models.OutcomeRecord, error)
	ReportOutcome(ctx context.Context, outcome models.OutcomeRecord) error
	HealthCheck(ctx context.Context) error
}
