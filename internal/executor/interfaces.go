// Package executor implements the resurrection executor: it
// calls the opaque module-restart mechanism and advances a
// ResurrectionRequest's status through its lifecycle.
package executor

import "context"

// Result is the outcome of a restart-mechanism call.
type Result struct {
	Success bool
	Message string
}

// Restarter is the opaque module-restart mechanism the executor drives. In
// production this talks to the orchestration layer that actually
// provisions the module instance; in tests it is a scripted fake.
type Restarter interface {
	Restart(ctx context.Context, module, instanceID string) (Result, error)
	Rollback(ctx context.Context, module, instanceID, reason string) (Result, error)
}
