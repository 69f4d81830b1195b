package intel

import (
	"context"
	"testing"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterQueryContextReturnsBackendResult(t *testing.T) {
	backend := NewInProcess()
	staged := models.IntelContext{QueryID: "q1", RiskScore: 0.8}
	backend.SetContext("checkout", staged)

	a := New(backend, nil)
	got := a.QueryContext(context.Background(), models.KillReport{KillID: "k1", TargetModule: "checkout"})
	assert.Equal(t, staged, got)
}

func TestAdapterQueryContextFallsBackOnExhaustedRetries(t *testing.T) {
	backend := NewInProcess()
	backend.Unhealthy = true

	a := New(backend, nil)

	// A short deadline makes Retry's backoff sleep return ctx.Err() almost
	// immediately instead of waiting out the real 2s/4s backoff schedule.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got := a.QueryContext(ctx, models.KillReport{KillID: "k1", TargetModule: "checkout"})
	assert.Equal(t, "default-k1", got.QueryID)
	assert.Equal(t, 0.5, got.RiskScore)
}

func TestAdapterGetHistoryReturnsNilOnFailure(t *testing.T) {
	backend := NewInProcess()
	backend.Unhealthy = true

	a := New(backend, nil)
	assert.Nil(t, a.GetHistory(context.Background(), "checkout"))
}

func TestAdapterReportOutcomeSwallowsFailure(t *testing.T) {
	backend := NewInProcess()
	backend.Unhealthy = true

	a := New(backend, nil)
	a.ReportOutcome(context.Background(), models.OutcomeRecord{KillID: "k1"})
	assert.Empty(t, backend.Outcomes())
}

func TestAdapterHealthCheckDelegatesToBackend(t *testing.T) {
	backend := NewInProcess()
	a := New(backend, nil)
	require.NoError(t, a.HealthCheck(context.Background()))

	backend.Unhealthy = true
	assert.Error(t, a.HealthCheck(context.Background()))
}
