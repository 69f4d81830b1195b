package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/executor"
	"github.com/kase1111-hash/medic-agent/internal/intel"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/selfmonitor"
	"github.com/kase1111-hash/medic-agent/internal/stream"
)

type scriptedRestarter struct {
	restartResult executor.Result
}

func (s *scriptedRestarter) Restart(ctx context.Context, module, instanceID string) (executor.Result, error) {
	return s.restartResult, nil
}

func (s *scriptedRestarter) Rollback(ctx context.Context, module, instanceID, reason string) (executor.Result, error) {
	return executor.Result{Success: true}, nil
}

type zeroResources struct{}

func (zeroResources) Sample(ctx context.Context) (float64, float64, error) { return 1, 1, nil }

type alwaysConnected struct{}

func (alwaysConnected) KillerConnected(ctx context.Context) bool { return true }
func (alwaysConnected) IntelConnected(ctx context.Context) bool  { return true }

func testAgent(t *testing.T) (*Agent, *stream.InProcess, *intel.InProcess) {
	t.Helper()
	cfg := config.Default()
	cfg.AgentID = "test-agent"

	reader := stream.NewInProcess()
	intelBackend := intel.NewInProcess()
	restarter := &scriptedRestarter{restartResult: executor.Result{Success: true, Message: "restarted"}}

	a := New(cfg, Deps{
		Reader:       reader,
		IntelBackend: intelBackend,
		Restarter:    restarter,
		Resources:    zeroResources{},
		Connections:  alwaysConnected{},
	}, agentlog.NewNoopLogger())

	return a, reader, intelBackend
}

func killReport(module string) models.KillReport {
	return models.KillReport{
		KillID: "kill-" + module, Timestamp: time.Now().UTC(),
		TargetModule: module, TargetInstanceID: module + "-0",
		KillReason: models.KillReasonResourceExhaustion, Severity: models.SeverityLow,
		ConfidenceScore: 0.9, SourceAgent: "killer-1",
	}
}

func publish(t *testing.T, reader *stream.InProcess, report models.KillReport) {
	t.Helper()
	wire, err := models.ToWire(report)
	require.NoError(t, err)
	_, err = reader.Add(context.Background(), wire)
	require.NoError(t, err)
}

func TestHandleKillReportLowRiskAutoResurrects(t *testing.T) {
	a, _, intelBackend := testAgent(t)
	// Weight risk entirely on the intel-reported score, decoupling it from
	// the killer's own confidence so both the risk assessor and the
	// decision engine can independently clear their thresholds.
	a.risk.UpdateConfig(config.RiskConfig{
		WeightIntelRisk:  1.0,
		ThresholdMinimal: 0.2, ThresholdLow: 0.4, ThresholdMedium: 0.6, ThresholdHigh: 0.8,
	})
	intelBackend.SetContext("checkout", models.IntelContext{
		FalsePositiveHistory: 0, RiskScore: 0.1, Recommendation: "proceed",
	})

	report := killReport("checkout")
	report.ConfidenceScore = 0.95

	err := a.handleKillReport(context.Background(), report)
	require.NoError(t, err)

	history := a.admission.History()
	require.Len(t, history, 1)
	require.Equal(t, models.AttemptSuccess, history[0].Result)
	require.Equal(t, 0, a.queue.Stats().Pending)
}

func TestHandleKillReportHighRiskGoesToQueue(t *testing.T) {
	a, _, intelBackend := testAgent(t)
	intelBackend.SetContext("billing", models.IntelContext{
		FalsePositiveHistory: 0, RiskScore: 0.95, Recommendation: "investigate",
	})

	report := killReport("billing")
	report.Severity = models.SeverityCritical
	report.ConfidenceScore = 0.4

	err := a.handleKillReport(context.Background(), report)
	require.NoError(t, err)

	require.Equal(t, 1, a.queue.Stats().Pending)
}

func TestHandleKillReportAlwaysDenyModuleNeverQueued(t *testing.T) {
	a, _, _ := testAgent(t)
	a.decision.UpdateConfig(config.DecisionConfig{
		AlwaysDeny: []string{"quarantined"}, AutoApproveMinConfidence: 0.85,
	})

	err := a.handleKillReport(context.Background(), killReport("quarantined"))
	require.NoError(t, err)
	require.Equal(t, 0, a.queue.Stats().Pending)
	require.Empty(t, a.admission.History())
}

func TestQueueApprovalExecutesAndStartsMonitoring(t *testing.T) {
	a, _, intelBackend := testAgent(t)
	intelBackend.SetContext("checkout", models.IntelContext{RiskScore: 0.7})

	report := killReport("checkout")
	report.Severity = models.SeverityHigh
	require.NoError(t, a.handleKillReport(context.Background(), report))
	require.Equal(t, 1, a.queue.Stats().Pending)

	items := a.queue.ListPending(10)
	require.Len(t, items, 1)

	_, err := a.queue.Approve(items[0].ItemID, "operator-1", "looks fine")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.pendingByID) == 1
	}, time.Second, time.Millisecond)
}

func TestHandleVetoRequestDelegatesToVetoManager(t *testing.T) {
	a, _, _ := testAgent(t)
	resp := a.HandleVetoRequest(context.Background(), models.VetoRequest{
		KillID: "k1", TargetModule: "checkout", KillerConfidence: 0.5,
	})
	require.NotEmpty(t, resp.Decision)
}

func TestSampleSelfHealthReflectsHealthyDeps(t *testing.T) {
	a, _, _ := testAgent(t)
	report := a.SampleSelfHealth(context.Background())
	require.Equal(t, selfmonitor.StatusHealthy, report.Overall)
}

func TestIngestLoopProcessesPublishedReport(t *testing.T) {
	a, reader, intelBackend := testAgent(t)
	// Default risk weights put this comfortably in MEDIUM, which the
	// decision engine routes to manual review rather than auto-approval -
	// this test only checks that a published report reaches the pipeline
	// at all, not the risk arithmetic.
	intelBackend.SetContext("checkout", models.IntelContext{RiskScore: 0.05})
	publish(t, reader, killReport("checkout"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = a.Start(ctx)

	require.Eventually(t, func() bool {
		return a.queue.Stats().Pending == 1
	}, time.Second, 5*time.Millisecond)
}
