package intel

import (
	"context"
	"testing"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessQueryContextReturnsStagedContext(t *testing.T) {
	f := NewInProcess()
	staged := models.IntelContext{QueryID: "q1", RiskScore: 0.9}
	f.SetContext("checkout", staged)

	got, err := f.QueryContext(context.Background(), models.KillReport{KillID: "k1", TargetModule: "checkout"})
	require.NoError(t, err)
	assert.Equal(t, staged, got)
}

func TestInProcessQueryContextFallsBackWhenNoneStaged(t *testing.T) {
	f := NewInProcess()
	now := time.Now().UTC()
	got, err := f.QueryContext(context.Background(), models.KillReport{KillID: "k1", TargetModule: "checkout", Timestamp: now})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultIntelContext("k1", now), got)
}

func TestInProcessGetHistoryAndReportOutcome(t *testing.T) {
	f := NewInProcess()
	hist, err := f.GetHistory(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Empty(t, hist)

	outcome := models.OutcomeRecord{KillID: "k1", Outcome: models.MonitorOutcomeStable}
	require.NoError(t, f.ReportOutcome(context.Background(), outcome))
	assert.Equal(t, []models.OutcomeRecord{outcome}, f.Outcomes())
}

func TestInProcessHealthCheckHealthyByDefault(t *testing.T) {
	f := NewInProcess()
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestInProcessUnhealthyTogglesAllMethods(t *testing.T) {
	f := NewInProcess()
	f.Unhealthy = true

	_, err := f.QueryContext(context.Background(), models.KillReport{KillID: "k1", TargetModule: "checkout"})
	assert.Error(t, err)

	_, err = f.GetHistory(context.Background(), "checkout")
	assert.Error(t, err)

	assert.Error(t, f.ReportOutcome(context.Background(), models.OutcomeRecord{KillID: "k1"}))
	assert.Error(t, f.HealthCheck(context.Background()))
}
