package executor

import (
	"context"
	"fmt"
)

// InProcessRestarter simulates module restarts without talking to any real
// orchestration layer, for local runs and demos where no orchestrator is
// configured.
type InProcessRestarter struct{}

// NewInProcessRestarter constructs an InProcessRestarter.
func NewInProcessRestarter() *InProcessRestarter { return &InProcessRestarter{} }

func (r *InProcessRestarter) Restart(ctx context.Context, module, instanceID string) (Result, error) {
	return Result{Success: true, Message: fmt.Sprintf("simulated restart of %s/%s", module, instanceID)}, nil
}

func (r *InProcessRestarter) Rollback(ctx context.Context, module, instanceID, reason string) (Result, error) {
	return Result{Success: true, Message: fmt.Sprintf("simulated rollback of %s/%s: %s", module, instanceID, reason)}, nil
}
