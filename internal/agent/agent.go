// Package agent wires every subsystem (ingest, intel, risk, decision,
// admission, queue, executor, monitor, edge-case, negotiation, veto,
// self-monitor, cluster coordination) into one running medic agent: a
// single top-level struct owns every component's lifecycle rather than
// scattering construction across main().
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/admission"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/coordination"
	"github.com/kase1111-hash/medic-agent/internal/decision"
	"github.com/kase1111-hash/medic-agent/internal/edgecase"
	"github.com/kase1111-hash/medic-agent/internal/executor"
	"github.com/kase1111-hash/medic-agent/internal/ingest"
	"github.com/kase1111-hash/medic-agent/internal/intel"
	"github.com/kase1111-hash/medic-agent/internal/models"
	"github.com/kase1111-hash/medic-agent/internal/monitor"
	"github.com/kase1111-hash/medic-agent/internal/negotiation"
	"github.com/kase1111-hash/medic-agent/internal/queue"
	"github.com/kase1111-hash/medic-agent/internal/recommendation"
	"github.com/kase1111-hash/medic-agent/internal/resilience"
	"github.com/kase1111-hash/medic-agent/internal/risk"
	"github.com/kase1111-hash/medic-agent/internal/selfmonitor"
	"github.com/kase1111-hash/medic-agent/internal/stream"
	"github.com/kase1111-hash/medic-agent/internal/telemetry"
)

// Deps are the externally-supplied, environment-specific collaborators an
// Agent cannot construct on its own: the kill-report stream, the intel
// backend, the module restart mechanism, the Killer negotiation channel,
// and the self-monitor's host probes.
type Deps struct {
	Reader stream.Reader
	IntelBackend intel.Backend
	Restarter executor.Restarter
	NegotiationTransport negotiation.Transport
	Resources selfmonitor.ResourceSampler
	Connections selfmonitor.ConnectionChecker
	ClusterStore coordination.Store
	Telemetry *telemetry.Provider // nil uses a no-op provider
}

// Agent owns every subsystem and the glue between them.
type Agent struct {
	cfg *config.Config
	logger agentlog.Logger

	ingester *ingest.Ingester
	intel *intel.Adapter
	risk *risk.Assessor
	decision *decision.Engine
	recommender *recommendation.Builder
	queue *queue.Queue
	executor *executor.Executor
	admission *admission.Manager
	monitor *monitor.Manager
	edgeCase *edgecase.Manager
	negotiator *negotiation.Negotiator
	veto *negotiation.VetoManager
	selfMonitor *selfmonitor.Monitor
	cluster *coordination.Coordinator
	telemetry *telemetry.Provider

	mu sync.Mutex
	pendingByID map[string]*models.ResurrectionRequest // requestID -> in-flight request, for monitor rollback
}

// New constructs an Agent with every subsystem wired per its configuration
// and returns it ready for Start.
func New(cfg *config.Config, deps Deps, logger agentlog.Logger) *Agent {
	tp := deps.Telemetry
	if tp == nil {
		tp = telemetry.Noop()
	}
	a := &Agent{
		cfg: cfg, logger: logger, telemetry: tp,
		pendingByID: make(map[string]*models.ResurrectionRequest),
	}

	a.intel = intel.New(deps.IntelBackend, logger)
	a.risk = risk.New(cfg.Risk)
	a.decision = decision.New(cfg.Decision, a.risk)
	a.recommender = recommendation.New()
	a.queue = queue.New(cfg.Queue.MaxPending, cfg.Queue.PersistPath, logger)
	a.executor = executor.New(deps.Restarter, resilience.ExecutorRetryConfig(), logger)

	a.monitor = monitor.New(cfg.Monitor, monitorHealthProbe{deps.Restarter}, monitorMetricsProbe{deps.Restarter}, logger)
	a.monitor.OnRollback(a.handleRollback)

	a.edgeCase = edgecase.New(cfg.EdgeCase, logger)

	a.admission = admission.New(cfg.Admission, a.executor, a.edgeCase.Gate(), a.startMonitoring, logger)

	if deps.NegotiationTransport != nil {
		a.negotiator = negotiation.New(cfg.Negotiation, deps.NegotiationTransport, logger)
	}
	a.veto = negotiation.NewVetoManager(cfg.Veto, vetoContextProvider{a.intel}, logger)

	a.selfMonitor = selfmonitor.New(cfg.SelfMonitor, deps.Resources, deps.Connections, a.queueDepth, a.remediate, logger)

	if deps.ClusterStore != nil {
		a.cluster = coordination.New(cfg.Cluster, deps.ClusterStore, logger)
	}

	ingestCfg := ingest.DefaultConfig(logger)
	ingestCfg.BlockTimeout = cfg.Stream.BlockTimeout
	a.ingester = ingest.New(ingestCfg, deps.Reader, a.handleKillReport)

	a.queue.OnLifecycleEvent(a.handleQueueEvent)

	return a
}

// Start brings up every background subsystem: the cluster coordinator (if
// configured), then the ingestion loop, which blocks until ctx is
// cancelled.
func (a *Agent) Start(ctx context.Context) error {
	if a.cluster != nil {
		if err := a.cluster.Start(ctx); err != nil {
			return fmt.Errorf("starting cluster coordinator: %w", err)
		}
	}
	return a.ingester.Run(ctx)
}

// Stop releases the coordinator's leader lock, if held. The ingestion loop
// observes ctx cancellation on its own; callers stop it by cancelling the
// context passed to Start.
func (a *Agent) Stop(ctx context.Context) error {
	if a.cluster != nil {
		return a.cluster.Stop(ctx)
	}
	return nil
}

// handleKillReport is the ingester's Handler: query intel context, assess
// risk, decide, and route the result to auto-resurrection or the approval
// queue.
func (a *Agent) handleKillReport(ctx context.Context, report models.KillReport) error {
	ctx, span := a.telemetry.StartSpan(ctx, "medic.handle_kill_report", report.KillID, report.TargetModule)
	start := time.Now()
	defer span.End()

	paused := a.edgeCase.IsAutoResurrectionPaused()
	intelCtx := a.intel.QueryContext(ctx, report)

	if ec := a.edgeCase.ProcessKillReport(report); ec != nil && a.logger != nil {
		a.logger.Warn("edge case detected", agentlog.Fields{
			"type": string(ec.Type), "severity": string(ec.Severity), "kill_id": report.KillID,
		})
	}

	assessment := a.risk.Assess(report, intelCtx, paused)
	decisionResult := a.decision.ShouldResurrect(report, intelCtx, paused)
	recordLatency := func(outcome string) {
		a.telemetry.Metrics().RecordDecisionLatency(ctx, float64(time.Since(start).Milliseconds()), outcome)
	}

	if decisionResult.Outcome == models.OutcomeApproveAuto {
		attempt := a.admission.AttemptResurrection(ctx, report, decisionResult, assessment)
		a.telemetry.Metrics().RecordAdmissionAttempt(ctx, string(attempt.Result))
		if attempt.Result == models.AttemptSuccess {
			recordLatency("auto_approved")
			return nil
		}
		if a.logger != nil {
			a.logger.Info("auto-resurrection not taken, falling back to manual review", agentlog.Fields{
				"kill_id": report.KillID, "reason": attempt.Reason,
			})
		}
	}

	if decisionResult.Outcome == models.OutcomeDeny {
		recordLatency("denied")
		return nil
	}

	proposal := a.recommender.Build(decisionResult, report, intelCtx, a.cfg.Queue.DefaultExpiry)
	if _, err := a.queue.Enqueue(proposal); err != nil {
		return fmt.Errorf("enqueueing resurrection proposal: %w", err)
	}
	a.telemetry.Metrics().AdjustQueueDepth(ctx, 1)
	recordLatency("pending_review")
	return nil
}

// handleQueueEvent executes an approved request and starts post-
// resurrection monitoring; denial and expiry require no further action
// beyond what the queue already records.
func (a *Agent) handleQueueEvent(event queue.LifecycleEvent, item models.QueueItem) {
	ctx := context.Background()
	if event == queue.EventApproved || event == queue.EventDenied || event == queue.EventExpired {
		a.telemetry.Metrics().AdjustQueueDepth(ctx, -1)
	}
	if event != queue.EventApproved {
		return
	}

	request := models.ResurrectionRequest{
		RequestID: uuid.NewString(),
		DecisionID: item.Proposal.Decision.DecisionID,
		KillID: item.Proposal.KillReport.KillID,
		TargetModule: item.Proposal.KillReport.TargetModule,
		TargetInstanceID: item.Proposal.KillReport.TargetInstanceID,
		Status: models.StatusApproved,
		CreatedAt: time.Now().UTC(),
		ApprovedBy: item.ReviewedBy,
	}

	result, err := a.executor.Resurrect(ctx, &request)
	if err != nil || !result.Success {
		if a.logger != nil {
			a.logger.Error("manual resurrection execution failed", agentlog.Fields{
				"item_id": item.ItemID, "error": errString(err, result.Message),
			})
		}
		return
	}

	a.startMonitoring(request)
}

// startMonitoring satisfies admission.MonitorStarter: it begins a post-
// resurrection monitoring session and tracks the request so handleRollback
// can find it again.
func (a *Agent) startMonitoring(request models.ResurrectionRequest) string {
	monitorID := a.monitor.StartMonitoring(context.Background(), request, a.cfg.Monitor.DefaultDurationMinutes)
	a.mu.Lock()
	a.pendingByID[request.RequestID] = &request
	a.mu.Unlock()
	return monitorID
}

// handleRollback satisfies monitor.RollbackCallback: it invokes the
// executor's rollback path for the monitoring session's resurrection
// request and reports the outcome back to intel.
func (a *Agent) handleRollback(requestID, reason string) {
	a.mu.Lock()
	request, ok := a.pendingByID[requestID]
	a.mu.Unlock()
	if !ok {
		if a.logger != nil {
			a.logger.Warn("rollback requested for unknown request", agentlog.Fields{"request_id": requestID})
		}
		return
	}

	ctx := context.Background()
	if _, err := a.executor.Rollback(ctx, request, reason); err != nil && a.logger != nil {
		a.logger.Error("rollback execution failed", agentlog.Fields{"request_id": request.RequestID, "error": err.Error()})
	}

	a.intel.ReportOutcome(ctx, models.OutcomeRecord{
		KillID: request.KillID, RequestID: request.RequestID,
		Outcome: models.MonitorOutcomeRollbackTriggered, Reason: reason, RecordedAt: time.Now().UTC(),
	})
	a.telemetry.Metrics().RecordMonitorOutcome(ctx, string(models.MonitorOutcomeRollbackTriggered))

	a.mu.Lock()
	delete(a.pendingByID, requestID)
	a.mu.Unlock()
}

// HandleVetoRequest answers a Killer's pre-kill veto request.
func (a *Agent) HandleVetoRequest(ctx context.Context, req models.VetoRequest) models.VetoResponse {
	return a.veto.HandleVetoRequest(ctx, req)
}

// Negotiate drives a Killer negotiation, if a transport was configured.
func (a *Agent) Negotiate(ctx context.Context, negotiationType models.NegotiationType, subject map[string]interface{}) (models.Negotiation, error) {
	if a.negotiator == nil {
		return models.Negotiation{}, fmt.Errorf("no negotiation transport configured")
	}
	return a.negotiator.Negotiate(ctx, negotiationType, a.cfg.AgentID, subject)
}

// SampleSelfHealth runs one self-monitor sample.
func (a *Agent) SampleSelfHealth(ctx context.Context) selfmonitor.Report {
	return a.selfMonitor.Sample(ctx)
}

// Queue exposes the approval queue for the operator console (cmd/medic-approvalctl).
func (a *Agent) Queue() *queue.Queue { return a.queue }

// Admission exposes the auto-resurrection manager's attempt history.
func (a *Agent) Admission() *admission.Manager { return a.admission }

// EdgeCase exposes the edge-case manager for operator inspection/override.
func (a *Agent) EdgeCase() *edgecase.Manager { return a.edgeCase }

// Cluster exposes the coordinator, or nil if clustering is disabled.
func (a *Agent) Cluster() *coordination.Coordinator { return a.cluster }

func (a *Agent) queueDepth() int {
	return a.queue.Stats().Pending
}

// remediate satisfies selfmonitor.RemediationHook. Queue saturation is
// relieved by pausing auto-resurrection, the only self-remediation the
// agent can safely perform without operator input.
func (a *Agent) remediate(ctx context.Context, metric string) error {
	if metric == "queue_depth" {
		a.edgeCase.PauseAutoResurrection("self-monitor: queue depth critical")
	}
	if a.logger != nil {
		a.logger.Warn("self-monitor remediation fired", agentlog.Fields{"metric": metric})
	}
	return nil
}

func errString(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// monitorHealthProbe adapts an executor.Restarter's health surface... the
// Restarter interface has no direct health probe, so probes are driven
// through the same Restarter by convention: a zero-downtime restart target
// that implements HealthProbe/MetricsProbe directly is preferred in
// production wiring; this adapter is the conservative fallback when it
// doesn't.
type monitorHealthProbe struct {
	restarter executor.Restarter
}

func (p monitorHealthProbe) Probe(ctx context.Context, module, instanceID string) (models.HealthCheckResult, error) {
	if probe, ok := p.restarter.(monitor.HealthProbe); ok {
		return probe.Probe(ctx, module, instanceID)
	}
	return models.HealthCheckResult{Healthy: true}, nil
}

type monitorMetricsProbe struct {
	restarter executor.Restarter
}

func (p monitorMetricsProbe) Sample(ctx context.Context, module, instanceID string) (models.MetricsSnapshot, error) {
	if probe, ok := p.restarter.(monitor.MetricsProbe); ok {
		return probe.Sample(ctx, module, instanceID)
	}
	return models.MetricsSnapshot{Timestamp: time.Now().UTC()}, nil
}

// vetoContextProvider satisfies negotiation.ContextProvider using the
// intel adapter's per-report query, keyed on a synthetic lookup report for
// the module in question.
type vetoContextProvider struct {
	intel *intel.Adapter
}

func (v vetoContextProvider) FalsePositiveHistory(ctx context.Context, module string) (int, error) {
	ic := v.intel.QueryContext(ctx, lookupReport(module))
	return ic.FalsePositiveHistory, nil
}

func (v vetoContextProvider) RiskScore(ctx context.Context, module string) (float64, error) {
	ic := v.intel.QueryContext(ctx, lookupReport(module))
	return ic.RiskScore, nil
}

func lookupReport(module string) models.KillReport {
	return models.KillReport{
		KillID: "veto-lookup-" + module, TargetModule: module, Timestamp: time.Now().UTC(),
	}
}
