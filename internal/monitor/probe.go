package monitor

import (
	"context"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// HealthProbe checks the live health of one module instance.
type HealthProbe interface {
	Probe(ctx context.Context, module, instanceID string) (models.HealthCheckResult, error)
}

// MetricsProbe samples resource/error metrics for one module instance.
type MetricsProbe interface {
	Sample(ctx context.Context, module, instanceID string) (models.MetricsSnapshot, error)
}
