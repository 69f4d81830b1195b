package selfmonitor

import (
	"context"

	"github.com/kase1111-hash/medic-agent/internal/intel"
	"github.com/kase1111-hash/medic-agent/internal/stream"
)

// LiveConnectionChecker reports Killer/Intel liveness via the same
// HealthCheck calls the ingest loop and intel adapter already expose.
type LiveConnectionChecker struct {
	reader  stream.Reader
	backend intel.Backend
}

// NewLiveConnectionChecker constructs a LiveConnectionChecker.
func NewLiveConnectionChecker(reader stream.Reader, backend intel.Backend) *LiveConnectionChecker {
	return &LiveConnectionChecker{reader: reader, backend: backend}
}

func (c *LiveConnectionChecker) KillerConnected(ctx context.Context) bool {
	return c.reader != nil && c.reader.HealthCheck(ctx) == nil
}

func (c *LiveConnectionChecker) IntelConnected(ctx context.Context) bool {
	return c.backend != nil && c.backend.HealthCheck(ctx) == nil
}
