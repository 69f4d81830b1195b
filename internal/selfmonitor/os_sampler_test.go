package selfmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSResourceSamplerReturnsPlausiblePercentages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := NewOSResourceSampler()
	cpuPercent, memPercent, err := s.Sample(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cpuPercent, 0.0)
	assert.LessOrEqual(t, cpuPercent, 100.0)
	assert.GreaterOrEqual(t, memPercent, 0.0)
	assert.LessOrEqual(t, memPercent, 100.0)
}
