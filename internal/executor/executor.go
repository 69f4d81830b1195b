package executor

import (
	"context"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
)

// Executor drives a ResurrectionRequest through APPROVED -> IN_PROGRESS ->
// {COMPLETED, FAILED, ROLLED_BACK}, retrying only transport-level restart
// failures, never logical rejections.
type Executor struct {
	restarter Restarter
	retry resilience.RetryConfig
	logger agentlog.Logger
	now func() time.Time
}

// New constructs an Executor around restarter.
func New(restarter Restarter, retry resilience.RetryConfig, logger agentlog.Logger) *Executor {
	return &Executor{restarter: restarter, retry: retry, logger: logger, now: time.Now}
}

// Resurrect transitions request to IN_PROGRESS, calls the restart
// mechanism (retrying transport failures per the configured policy), and
// transitions to COMPLETED or FAILED based on the outcome.
func (e *Executor) Resurrect(ctx context.Context, request *models.ResurrectionRequest) (Result, error) {
	if err := request.Transition(models.StatusInProgress, e.now().UTC()); err != nil {
		return Result{}, err
	}

	var result Result
	err := resilience.Retry(ctx, e.retry, func(ctx context.Context, attempt int) error {
		var restartErr error
		result, restartErr = e.restarter.Restart(ctx, request.TargetModule, request.TargetInstanceID)
		if restartErr != nil && !isTransportError(restartErr) {
			return resilience.StopRetrying(restartErr)
		}
		return restartErr
	})

	if err != nil || !result.Success {
		if transErr := request.Transition(models.StatusFailed, e.now().UTC()); transErr != nil && e.logger != nil {
			e.logger.Error("failed to transition request to FAILED", agentlog.Fields{"error": transErr.Error()})
		}
		if err == nil {
			err = agenterr.New("executor.Resurrect", agenterr.KindExternal, result.Message, nil)
		}
		return result, err
	}

	if transErr := request.Transition(models.StatusCompleted, e.now().UTC()); transErr != nil {
		return result, transErr
	}
	return result, nil
}

// Rollback transitions request to ROLLED_BACK after invoking the restart
// mechanism's rollback call. Rollback is not retried: a failed rollback is
// surfaced immediately so an operator can intervene.
func (e *Executor) Rollback(ctx context.Context, request *models.ResurrectionRequest, reason string) (Result, error) {
	result, err := e.restarter.Rollback(ctx, request.TargetModule, request.TargetInstanceID, reason)
	request.RollbackReason = reason
	if transErr := request.Transition(models.StatusRolledBack, e.now().UTC()); transErr != nil {
		return result, transErr
	}
	return result, err
}

func isTransportError(err error) bool {
	kind, ok := agenterr.KindOf(err)
	if !ok {
		return true
	}
	return kind == agenterr.KindConnection || kind == agenterr.KindTimeout
}
