package selfmonitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/config"
)

type fakeResources struct {
	cpu, mem float64
	err      error
}

func (f fakeResources) Sample(ctx context.Context) (float64, float64, error) {
	return f.cpu, f.mem, f.err
}

type fakeConn struct {
	killer, intel bool
}

func (f fakeConn) KillerConnected(ctx context.Context) bool { return f.killer }
func (f fakeConn) IntelConnected(ctx context.Context) bool  { return f.intel }

func testCfg() config.SelfMonitorConfig {
	return config.SelfMonitorConfig{SampleInterval: time.Second, MaxAutoRemediationsPerHour: 3}
}

func TestSampleAllHealthy(t *testing.T) {
	m := New(testCfg(), fakeResources{cpu: 10, mem: 20}, fakeConn{killer: true, intel: true}, func() int { return 1 }, nil, nil)
	report := m.Sample(context.Background())
	assert.Equal(t, StatusHealthy, report.Overall)
}

func TestSampleResourceCriticalDrivesOverall(t *testing.T) {
	m := New(testCfg(), fakeResources{cpu: 10, mem: 97}, fakeConn{killer: true, intel: true}, func() int { return 1 }, nil, nil)
	report := m.Sample(context.Background())
	assert.Equal(t, StatusCritical, report.Overall)
}

func TestDisconnectedKillerIsCritical(t *testing.T) {
	m := New(testCfg(), fakeResources{cpu: 10, mem: 10}, fakeConn{killer: false, intel: true}, func() int { return 1 }, nil, nil)
	report := m.Sample(context.Background())
	assert.Equal(t, StatusCritical, report.Overall)
}

func TestQueueDepthCriticalClassification(t *testing.T) {
	m := New(testCfg(), fakeResources{cpu: 1, mem: 1}, fakeConn{killer: true, intel: true}, func() int { return 150 }, nil, nil)
	report := m.Sample(context.Background())
	assert.Equal(t, StatusCritical, report.Overall)
}

func TestRemediationFiresOnceOnTransitionToCritical(t *testing.T) {
	calls := 0
	remediate := func(ctx context.Context, metric string) error {
		calls++
		return nil
	}
	m := New(testCfg(), fakeResources{cpu: 1, mem: 99}, fakeConn{killer: true, intel: true}, func() int { return 1 }, remediate, nil)

	m.Sample(context.Background())
	m.Sample(context.Background())

	assert.Equal(t, 1, calls, "remediation should fire only on the transition into CRITICAL, not every sample")
}

func TestRemediationRespectsHourlyCap(t *testing.T) {
	calls := 0
	remediate := func(ctx context.Context, metric string) error {
		calls++
		return nil
	}
	cfg := testCfg()
	cfg.MaxAutoRemediationsPerHour = 1
	m := New(cfg, fakeResources{cpu: 1, mem: 99}, fakeConn{killer: true, intel: true}, func() int { return 1 }, remediate, nil)

	m.Sample(context.Background())
	m.lastOverall = StatusHealthy // simulate another critical transition
	m.Sample(context.Background())

	assert.Equal(t, 1, calls)
}

func TestResourceSampleErrorSkipsMetricWithoutPanicking(t *testing.T) {
	m := New(testCfg(), fakeResources{err: errors.New("unavailable")}, fakeConn{killer: true, intel: true}, func() int { return 1 }, nil, nil)
	require.NotPanics(t, func() { m.Sample(context.Background()) })
}

func TestRecordDecisionLatencyFeedsIntoMetric(t *testing.T) {
	m := New(testCfg(), nil, nil, nil, nil, nil)
	m.RecordDecisionLatency(3 * time.Second)
	report := m.Sample(context.Background())
	require.NotEmpty(t, report.Metrics)
	assert.Equal(t, StatusCritical, report.Metrics[0].Status)
}
