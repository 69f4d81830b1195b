package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
)

type scriptedRestarter struct {
	restartCalls  int
	failuresLeft  int
	restartErr    error
	rollbackResult Result
	rollbackErr   error
}

func (s *scriptedRestarter) Restart(ctx context.Context, module, instanceID string) (Result, error) {
	s.restartCalls++
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return Result{}, s.restartErr
	}
	return Result{Success: true, Message: "restarted"}, nil
}

func (s *scriptedRestarter) Rollback(ctx context.Context, module, instanceID, reason string) (Result, error) {
	return s.rollbackResult, s.rollbackErr
}

func newRequest() *models.ResurrectionRequest {
	return &models.ResurrectionRequest{
		RequestID: "r1", TargetModule: "payments", TargetInstanceID: "payments-0",
		Status: models.StatusApproved, CreatedAt: time.Now().UTC(),
	}
}

func TestResurrectRetriesTransportFailures(t *testing.T) {
	restarter := &scriptedRestarter{
		failuresLeft: 2,
		restartErr:   agenterr.New("restart", agenterr.KindConnection, "dial failed", nil),
	}
	e := New(restarter, resilience.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	req := newRequest()
	result, err := e.Resurrect(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, restarter.restartCalls)
	assert.Equal(t, models.StatusCompleted, req.Status)
}

func TestResurrectDoesNotRetryLogicalRejection(t *testing.T) {
	restarter := &scriptedRestarter{
		failuresLeft: 5,
		restartErr:   agenterr.New("restart", agenterr.KindValidation, "module does not exist", nil),
	}
	e := New(restarter, resilience.RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil)

	req := newRequest()
	_, err := e.Resurrect(context.Background(), req)

	require.Error(t, err)
	assert.Equal(t, 1, restarter.restartCalls)
	assert.Equal(t, models.StatusFailed, req.Status)
}

func TestRollbackTransitionsStatus(t *testing.T) {
	restarter := &scriptedRestarter{rollbackResult: Result{Success: true}}
	e := New(restarter, resilience.RetryConfig{}, nil)

	req := newRequest()
	req.Status = models.StatusInProgress
	_, err := e.Rollback(context.Background(), req, "anomaly detected")

	require.NoError(t, err)
	assert.Equal(t, models.StatusRolledBack, req.Status)
	assert.Equal(t, "anomaly detected", req.RollbackReason)
}
