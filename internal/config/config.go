// Package config implements the three-layer configuration model used across
// the agent: built-in defaults, overridden by environment variables,
// overridden in turn by functional options passed to New. Unknown or
// malformed environment values are a configuration error and fail startup
// immediately; configuration errors are never silently degraded.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
)

// Config is the top-level configuration for the medic agent process. Each
// subsystem embeds its own config struct, one per component, rather than a
// single flat namespace.
type Config struct {
	AgentID string `env:"MEDIC_AGENT_ID"`
	Namespace string `env:"MEDIC_NAMESPACE" default:"default"`

	Logging LoggingConfig
	Stream StreamConfig
	Intel IntelConfig
	Restarter RestarterConfig
	Risk RiskConfig
	Decision DecisionConfig
	Admission AdmissionConfig
	Queue QueueConfig
	Monitor MonitorConfig
	EdgeCase EdgeCaseConfig
	Negotiation NegotiationConfig
	Veto VetoConfig
	SelfMonitor SelfMonitorConfig
	Cluster ClusterConfig
	Admin AdminConfig
	Telemetry TelemetryConfig
}

// TelemetryConfig controls the OpenTelemetry tracer/meter wiring
// (internal/telemetry). Exporter "none" disables span export entirely but
// leaves the API usable against a no-op provider; "stdout" writes spans as
// JSON, intended for local development rather than production log volume.
type TelemetryConfig struct {
	Enabled bool `env:"MEDIC_TELEMETRY_ENABLED" default:"false"`
	ServiceName string `env:"MEDIC_TELEMETRY_SERVICE_NAME" default:"medic-agent"`
	Exporter string `env:"MEDIC_TELEMETRY_EXPORTER" default:"stdout"`
}

// AdminConfig configures the queue-admin HTTP API that backs the
// medic-approvalctl operator console.
// Empty ListenAddr disables the API. OperatorID is attributed to any
// approve/deny call that arrives without a reviewer (scripted callers
// hitting the API directly); medic-approvalctl always sends its own.
type AdminConfig struct {
	ListenAddr string `env:"MEDIC_ADMIN_LISTEN_ADDR"`
	OperatorID string `env:"MEDIC_OPERATOR_ID"`
}

// LoggingConfig controls the structured logger (internal/agentlog).
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"json"`
}

// StreamConfig configures the kill-stream ingester.
type StreamConfig struct {
	// Backend selects the Reader implementation: "redis" or "inprocess".
	Backend string `env:"MEDIC_STREAM_BACKEND" default:"inprocess"`
	RedisURL string `env:"MEDIC_STREAM_REDIS_URL,REDIS_URL"`
	StreamKey string `env:"MEDIC_STREAM_KEY" default:"medic:kills"`
	ConsumerGroup string `env:"MEDIC_STREAM_GROUP" default:"medic-agents"`
	ConsumerName string `env:"MEDIC_STREAM_CONSUMER"`
	BlockTimeout time.Duration `env:"MEDIC_STREAM_BLOCK_TIMEOUT" default:"1s"`
}

// IntelConfig configures the intel backend adapter.
type IntelConfig struct {
	// Backend selects the Backend implementation: "http" or "inprocess".
	Backend string `env:"MEDIC_INTEL_BACKEND" default:"inprocess"`
	BaseURL string `env:"MEDIC_INTEL_URL"`
	AuthToken string `env:"MEDIC_INTEL_TOKEN"`
	MaxRetries int `env:"MEDIC_INTEL_MAX_RETRIES" default:"3"`
	RequestTimeout time.Duration `env:"MEDIC_INTEL_TIMEOUT" default:"10s"`
}

// RestarterConfig configures how the executor actually restarts a module:
// an HTTP call to the orchestration layer in production, or an in-process
// simulation for local runs and demos.
type RestarterConfig struct {
	Backend string `env:"MEDIC_RESTARTER_BACKEND" default:"inprocess"`
	BaseURL string `env:"MEDIC_RESTARTER_URL"`
	Timeout time.Duration `env:"MEDIC_RESTARTER_TIMEOUT" default:"10s"`
}

// RiskConfig configures the risk assessor. Weights must sum to
// 1.0 and are validated at startup.
type RiskConfig struct {
	WeightKillerConfidence float64 `env:"MEDIC_RISK_W_KILLER_CONFIDENCE" default:"0.25"`
	WeightIntelRisk float64 `env:"MEDIC_RISK_W_INTEL_RISK" default:"0.2"`
	WeightFalsePositiveHistory float64 `env:"MEDIC_RISK_W_FP_HISTORY" default:"0.15"`
	WeightModuleCriticality float64 `env:"MEDIC_RISK_W_MODULE_CRITICALITY" default:"0.15"`
	WeightSeverity float64 `env:"MEDIC_RISK_W_SEVERITY" default:"0.15"`
	WeightDependencyPressure float64 `env:"MEDIC_RISK_W_DEPENDENCY_PRESSURE" default:"0.05"`
	WeightThreatIndicators float64 `env:"MEDIC_RISK_W_THREAT_INDICATORS" default:"0.05"`

	ThresholdMinimal float64 `env:"MEDIC_RISK_THRESHOLD_MINIMAL" default:"0.2"`
	ThresholdLow float64 `env:"MEDIC_RISK_THRESHOLD_LOW" default:"0.4"`
	ThresholdMedium float64 `env:"MEDIC_RISK_THRESHOLD_MEDIUM" default:"0.6"`
	ThresholdHigh float64 `env:"MEDIC_RISK_THRESHOLD_HIGH" default:"0.8"`

	// CriticalModules lists modules treated as raw criticality 1.0.
	CriticalModules []string `env:"MEDIC_RISK_CRITICAL_MODULES"`
}

// DecisionConfig configures the decision engine.
type DecisionConfig struct {
	AlwaysDeny []string `env:"MEDIC_DECISION_ALWAYS_DENY"`
	AlwaysRequireApproval []string `env:"MEDIC_DECISION_ALWAYS_REQUIRE_APPROVAL"`
	AutoApproveMinConfidence float64 `env:"MEDIC_DECISION_AUTO_APPROVE_MIN_CONFIDENCE" default:"0.85"`
}

// AdmissionConfig configures the auto-resurrection manager.
type AdmissionConfig struct {
	Enabled bool `env:"MEDIC_ADMISSION_ENABLED" default:"true"`
	Blacklist []string `env:"MEDIC_ADMISSION_BLACKLIST"`
	MaxRiskScore float64 `env:"MEDIC_ADMISSION_MAX_RISK_SCORE" default:"0.3"`
	MinConfidence float64 `env:"MEDIC_ADMISSION_MIN_CONFIDENCE" default:"0.85"`
	MaxPerHour int `env:"MEDIC_ADMISSION_MAX_PER_HOUR" default:"10"`
	MaxPerModulePerHour int `env:"MEDIC_ADMISSION_MAX_PER_MODULE_PER_HOUR" default:"3"`
	CooldownSeconds time.Duration `env:"MEDIC_ADMISSION_COOLDOWN" default:"300s"`
	HistoryCapacity int `env:"MEDIC_ADMISSION_HISTORY_CAPACITY" default:"1000"`
}

// QueueConfig configures the approval queue.
type QueueConfig struct {
	MaxPending int `env:"MEDIC_QUEUE_MAX_PENDING" default:"100"`
	DefaultExpiry time.Duration `env:"MEDIC_QUEUE_DEFAULT_EXPIRY" default:"30m"`
	PersistPath string `env:"MEDIC_QUEUE_PERSIST_PATH"`
}

// MonitorConfig configures the post-resurrection monitor.
type MonitorConfig struct {
	DefaultDurationMinutes int `env:"MEDIC_MONITOR_DEFAULT_DURATION_MINUTES" default:"30"`
	HealthCheckInterval time.Duration `env:"MEDIC_MONITOR_HEALTH_CHECK_INTERVAL" default:"30s"`
	MaxConsecutiveFailures int `env:"MEDIC_MONITOR_MAX_CONSECUTIVE_FAILURES" default:"3"`
	MetricsHistoryCapacity int `env:"MEDIC_MONITOR_METRICS_HISTORY_CAPACITY" default:"100"`
}

// EdgeCaseConfig configures the edge-case manager.
type EdgeCaseConfig struct {
	AutoPauseOnCritical bool `env:"MEDIC_EDGECASE_AUTO_PAUSE_ON_CRITICAL" default:"true"`
	RapidRepeatWindow time.Duration `env:"MEDIC_EDGECASE_RAPID_REPEAT_WINDOW" default:"60s"`
	RapidRepeatThreshold int `env:"MEDIC_EDGECASE_RAPID_REPEAT_THRESHOLD" default:"3"`
	HistoryCapacity int `env:"MEDIC_EDGECASE_HISTORY_CAPACITY" default:"500"`
}

// NegotiationConfig configures the killer negotiation protocols.
type NegotiationConfig struct {
	TimeoutSeconds time.Duration `env:"MEDIC_NEGOTIATION_TIMEOUT" default:"30s"`
	HistoryCapacity int `env:"MEDIC_NEGOTIATION_HISTORY_CAPACITY" default:"500"`
}

// VetoConfig configures the pre-kill veto protocol.
type VetoConfig struct {
	Enabled bool `env:"MEDIC_VETO_ENABLED" default:"true"`
	MinFPForVeto int `env:"MEDIC_VETO_MIN_FP" default:"3"`
	MaxRiskForVeto float64 `env:"MEDIC_VETO_MAX_RISK" default:"0.3"`
	MaxVetosPerHour int `env:"MEDIC_VETO_MAX_PER_HOUR" default:"10"`
	VetoCooldownSeconds time.Duration `env:"MEDIC_VETO_COOLDOWN" default:"300s"`
	RecentResurrectionWindow time.Duration `env:"MEDIC_VETO_RECENT_RESURRECTION_WINDOW" default:"3600s"`
	CriticalDependencyThreshold int `env:"MEDIC_VETO_CRITICAL_DEPENDENCY_THRESHOLD" default:"6"`
}

// SelfMonitorConfig configures the agent's self-monitoring loop.
type SelfMonitorConfig struct {
	SampleInterval time.Duration `env:"MEDIC_SELFMON_SAMPLE_INTERVAL" default:"15s"`
	MaxAutoRemediationsPerHour int `env:"MEDIC_SELFMON_MAX_AUTO_REMEDIATIONS_PER_HOUR" default:"3"`
}

// ClusterConfig configures the cluster coordinator.
type ClusterConfig struct {
	ClusterID string `env:"MEDIC_CLUSTER_ID"`
	Store string `env:"MEDIC_CLUSTER_STORE" default:"inprocess"`
	RedisURL string `env:"MEDIC_CLUSTER_REDIS_URL,REDIS_URL"`
	ElectionInterval time.Duration `env:"MEDIC_CLUSTER_ELECTION_INTERVAL" default:"15s"`
	LeaderTTL time.Duration `env:"MEDIC_CLUSTER_LEADER_TTL" default:"30s"`
	SyncInterval time.Duration `env:"MEDIC_CLUSTER_SYNC_INTERVAL" default:"5s"`
	HeartbeatInterval time.Duration `env:"MEDIC_CLUSTER_HEARTBEAT_INTERVAL" default:"10s"`
	MaxEvents int `env:"MEDIC_CLUSTER_MAX_EVENTS" default:"500"`
}

// Option mutates a Config during New, applied after environment
// variables so functional options always win.
type Option func(*Config) error

// Default returns the built-in defaults (layer one).
func Default() *Config {
	return &Config{
		Namespace: "default",
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Stream: StreamConfig{Backend: "inprocess", StreamKey: "medic:kills", ConsumerGroup: "medic-agents", BlockTimeout: time.Second},
		Intel: IntelConfig{Backend: "inprocess", MaxRetries: 3, RequestTimeout: 10 * time.Second},
		Restarter: RestarterConfig{Backend: "inprocess", Timeout: 10 * time.Second},
		Risk: RiskConfig{
			WeightKillerConfidence: 0.25, WeightIntelRisk: 0.2, WeightFalsePositiveHistory: 0.15,
			WeightModuleCriticality: 0.15, WeightSeverity: 0.15, WeightDependencyPressure: 0.05,
			WeightThreatIndicators: 0.05,
			ThresholdMinimal: 0.2, ThresholdLow: 0.4, ThresholdMedium: 0.6, ThresholdHigh: 0.8,
		},
		Decision: DecisionConfig{AutoApproveMinConfidence: 0.85},
		Admission: AdmissionConfig{
			Enabled: true, MaxRiskScore: 0.3, MinConfidence: 0.85,
			MaxPerHour: 10, MaxPerModulePerHour: 3, CooldownSeconds: 300 * time.Second,
			HistoryCapacity: 1000,
		},
		Queue: QueueConfig{MaxPending: 100, DefaultExpiry: 30 * time.Minute},
		Monitor: MonitorConfig{
			DefaultDurationMinutes: 30, HealthCheckInterval: 30 * time.Second,
			MaxConsecutiveFailures: 3, MetricsHistoryCapacity: 100,
		},
		EdgeCase: EdgeCaseConfig{
			AutoPauseOnCritical: true, RapidRepeatWindow: 60 * time.Second,
			RapidRepeatThreshold: 3, HistoryCapacity: 500,
		},
		Negotiation: NegotiationConfig{TimeoutSeconds: 30 * time.Second, HistoryCapacity: 500},
		Veto: VetoConfig{
			Enabled: true, MinFPForVeto: 3, MaxRiskForVeto: 0.3, MaxVetosPerHour: 10,
			VetoCooldownSeconds: 300 * time.Second, RecentResurrectionWindow: 3600 * time.Second,
			CriticalDependencyThreshold: 6,
		},
		SelfMonitor: SelfMonitorConfig{SampleInterval: 15 * time.Second, MaxAutoRemediationsPerHour: 3},
		Cluster: ClusterConfig{
			Store: "inprocess", ElectionInterval: 15 * time.Second, LeaderTTL: 30 * time.Second,
			SyncInterval: 5 * time.Second, HeartbeatInterval: 10 * time.Second, MaxEvents: 500,
		},
		Telemetry: TelemetryConfig{Enabled: false, ServiceName: "medic-agent", Exporter: "stdout"},
	}
}

// envString reads the first set variable among a comma-separated list of
// names, e.g. "MEDIC_STREAM_REDIS_URL,REDIS_URL" falling back to the
// widely-recognized unprefixed name.
func envString(names string) (string, bool) {
	for _, name := range strings.Split(names, ",") {
		if v, ok := os.LookupEnv(strings.TrimSpace(name)); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func envFloat(op, names string) (float64, bool, error) {
	v, ok := envString(names)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, agenterr.New(op, agenterr.KindConfiguration,
			fmt.Sprintf("invalid float for %s: %q", names, v), err)
	}
	return f, true, nil
}

func envInt(op, names string) (int, bool, error) {
	v, ok := envString(names)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, agenterr.New(op, agenterr.KindConfiguration,
			fmt.Sprintf("invalid int for %s: %q", names, v), err)
	}
	return n, true, nil
}

func envBool(op, names string) (bool, bool, error) {
	v, ok := envString(names)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, agenterr.New(op, agenterr.KindConfiguration,
			fmt.Sprintf("invalid bool for %s: %q", names, v), err)
	}
	return b, true, nil
}

func envDuration(op, names string) (time.Duration, bool, error) {
	v, ok := envString(names)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, agenterr.New(op, agenterr.KindConfiguration,
			fmt.Sprintf("invalid duration for %s: %q", names, v), err)
	}
	return d, true, nil
}

func envList(names string) ([]string, bool) {
	v, ok := envString(names)
	if !ok {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out, true
}

// LoadFromEnv overlays environment variables (layer two) onto c. A
// malformed value for any recognized variable is a configuration error and
// aborts the whole load — configuration errors fail fast rather than
// silently falling back to the default.
func (c *Config) LoadFromEnv() error {
	const op = "config.LoadFromEnv"

	if v, ok := envString("MEDIC_AGENT_ID"); ok {
		c.AgentID = v
	}
	if v, ok := envString("MEDIC_NAMESPACE"); ok {
		c.Namespace = v
	}
	if v, ok := envString("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := envString("LOG_FORMAT"); ok {
		c.Logging.Format = v
	}

	if v, ok := envString("MEDIC_STREAM_BACKEND"); ok {
		c.Stream.Backend = v
	}
	if v, ok := envString("MEDIC_STREAM_REDIS_URL,REDIS_URL"); ok {
		c.Stream.RedisURL = v
	}
	if v, ok := envString("MEDIC_STREAM_KEY"); ok {
		c.Stream.StreamKey = v
	}
	if v, ok := envString("MEDIC_STREAM_GROUP"); ok {
		c.Stream.ConsumerGroup = v
	}
	if v, ok := envString("MEDIC_STREAM_CONSUMER"); ok {
		c.Stream.ConsumerName = v
	}
	if d, ok, err := envDuration(op, "MEDIC_STREAM_BLOCK_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Stream.BlockTimeout = d
	}

	if v, ok := envString("MEDIC_INTEL_BACKEND"); ok {
		c.Intel.Backend = v
	}
	if v, ok := envString("MEDIC_INTEL_URL"); ok {
		c.Intel.BaseURL = v
	}
	if v, ok := envString("MEDIC_INTEL_TOKEN"); ok {
		c.Intel.AuthToken = v
	}
	if n, ok, err := envInt(op, "MEDIC_INTEL_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		c.Intel.MaxRetries = n
	}
	if d, ok, err := envDuration(op, "MEDIC_INTEL_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Intel.RequestTimeout = d
	}

	if v, ok := envString("MEDIC_RESTARTER_BACKEND"); ok {
		c.Restarter.Backend = v
	}
	if v, ok := envString("MEDIC_RESTARTER_URL"); ok {
		c.Restarter.BaseURL = v
	}
	if d, ok, err := envDuration(op, "MEDIC_RESTARTER_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Restarter.Timeout = d
	}

	if err := c.loadRiskEnv(op); err != nil {
		return err
	}
	if err := c.loadDecisionEnv(op); err != nil {
		return err
	}
	if err := c.loadAdmissionEnv(op); err != nil {
		return err
	}
	if err := c.loadQueueEnv(op); err != nil {
		return err
	}
	if err := c.loadMonitorEnv(op); err != nil {
		return err
	}
	if err := c.loadEdgeCaseEnv(op); err != nil {
		return err
	}
	if err := c.loadNegotiationVetoSelfMonEnv(op); err != nil {
		return err
	}
	if err := c.loadClusterEnv(op); err != nil {
		return err
	}
	if v, ok := envString("MEDIC_ADMIN_LISTEN_ADDR"); ok {
		c.Admin.ListenAddr = v
	}
	if v, ok := envString("MEDIC_OPERATOR_ID"); ok {
		c.Admin.OperatorID = v
	}
	if v, ok, err := envBool(op, "MEDIC_TELEMETRY_ENABLED"); err != nil {
		return err
	} else if ok {
		c.Telemetry.Enabled = v
	}
	if v, ok := envString("MEDIC_TELEMETRY_SERVICE_NAME"); ok {
		c.Telemetry.ServiceName = v
	}
	if v, ok := envString("MEDIC_TELEMETRY_EXPORTER"); ok {
		c.Telemetry.Exporter = v
	}
	return nil
}

func (c *Config) loadRiskEnv(op string) error {
	floats := []struct {
		name string
		dst *float64
	}{
		{"MEDIC_RISK_W_KILLER_CONFIDENCE", &c.Risk.WeightKillerConfidence},
		{"MEDIC_RISK_W_INTEL_RISK", &c.Risk.WeightIntelRisk},
		{"MEDIC_RISK_W_FP_HISTORY", &c.Risk.WeightFalsePositiveHistory},
		{"MEDIC_RISK_W_MODULE_CRITICALITY", &c.Risk.WeightModuleCriticality},
		{"MEDIC_RISK_W_SEVERITY", &c.Risk.WeightSeverity},
		{"MEDIC_RISK_W_DEPENDENCY_PRESSURE", &c.Risk.WeightDependencyPressure},
		{"MEDIC_RISK_W_THREAT_INDICATORS", &c.Risk.WeightThreatIndicators},
		{"MEDIC_RISK_THRESHOLD_MINIMAL", &c.Risk.ThresholdMinimal},
		{"MEDIC_RISK_THRESHOLD_LOW", &c.Risk.ThresholdLow},
		{"MEDIC_RISK_THRESHOLD_MEDIUM", &c.Risk.ThresholdMedium},
		{"MEDIC_RISK_THRESHOLD_HIGH", &c.Risk.ThresholdHigh},
	}
	for _, f := range floats {
		if v, ok, err := envFloat(op, f.name); err != nil {
			return err
		} else if ok {
			*f.dst = v
		}
	}
	if v, ok := envList("MEDIC_RISK_CRITICAL_MODULES"); ok {
		c.Risk.CriticalModules = v
	}
	return nil
}

func (c *Config) loadDecisionEnv(op string) error {
	if v, ok := envList("MEDIC_DECISION_ALWAYS_DENY"); ok {
		c.Decision.AlwaysDeny = v
	}
	if v, ok := envList("MEDIC_DECISION_ALWAYS_REQUIRE_APPROVAL"); ok {
		c.Decision.AlwaysRequireApproval = v
	}
	if v, ok, err := envFloat(op, "MEDIC_DECISION_AUTO_APPROVE_MIN_CONFIDENCE"); err != nil {
		return err
	} else if ok {
		c.Decision.AutoApproveMinConfidence = v
	}
	return nil
}

func (c *Config) loadAdmissionEnv(op string) error {
	if b, ok, err := envBool(op, "MEDIC_ADMISSION_ENABLED"); err != nil {
		return err
	} else if ok {
		c.Admission.Enabled = b
	}
	if v, ok := envList("MEDIC_ADMISSION_BLACKLIST"); ok {
		c.Admission.Blacklist = v
	}
	if f, ok, err := envFloat(op, "MEDIC_ADMISSION_MAX_RISK_SCORE"); err != nil {
		return err
	} else if ok {
		c.Admission.MaxRiskScore = f
	}
	if f, ok, err := envFloat(op, "MEDIC_ADMISSION_MIN_CONFIDENCE"); err != nil {
		return err
	} else if ok {
		c.Admission.MinConfidence = f
	}
	if n, ok, err := envInt(op, "MEDIC_ADMISSION_MAX_PER_HOUR"); err != nil {
		return err
	} else if ok {
		c.Admission.MaxPerHour = n
	}
	if n, ok, err := envInt(op, "MEDIC_ADMISSION_MAX_PER_MODULE_PER_HOUR"); err != nil {
		return err
	} else if ok {
		c.Admission.MaxPerModulePerHour = n
	}
	if d, ok, err := envDuration(op, "MEDIC_ADMISSION_COOLDOWN"); err != nil {
		return err
	} else if ok {
		c.Admission.CooldownSeconds = d
	}
	if n, ok, err := envInt(op, "MEDIC_ADMISSION_HISTORY_CAPACITY"); err != nil {
		return err
	} else if ok {
		c.Admission.HistoryCapacity = n
	}
	return nil
}

func (c *Config) loadQueueEnv(op string) error {
	if n, ok, err := envInt(op, "MEDIC_QUEUE_MAX_PENDING"); err != nil {
		return err
	} else if ok {
		c.Queue.MaxPending = n
	}
	if d, ok, err := envDuration(op, "MEDIC_QUEUE_DEFAULT_EXPIRY"); err != nil {
		return err
	} else if ok {
		c.Queue.DefaultExpiry = d
	}
	if v, ok := envString("MEDIC_QUEUE_PERSIST_PATH"); ok {
		c.Queue.PersistPath = v
	}
	return nil
}

func (c *Config) loadMonitorEnv(op string) error {
	if n, ok, err := envInt(op, "MEDIC_MONITOR_DEFAULT_DURATION_MINUTES"); err != nil {
		return err
	} else if ok {
		c.Monitor.DefaultDurationMinutes = n
	}
	if d, ok, err := envDuration(op, "MEDIC_MONITOR_HEALTH_CHECK_INTERVAL"); err != nil {
		return err
	} else if ok {
		c.Monitor.HealthCheckInterval = d
	}
	if n, ok, err := envInt(op, "MEDIC_MONITOR_MAX_CONSECUTIVE_FAILURES"); err != nil {
		return err
	} else if ok {
		c.Monitor.MaxConsecutiveFailures = n
	}
	if n, ok, err := envInt(op, "MEDIC_MONITOR_METRICS_HISTORY_CAPACITY"); err != nil {
		return err
	} else if ok {
		c.Monitor.MetricsHistoryCapacity = n
	}
	return nil
}

func (c *Config) loadEdgeCaseEnv(op string) error {
	if b, ok, err := envBool(op, "MEDIC_EDGECASE_AUTO_PAUSE_ON_CRITICAL"); err != nil {
		return err
	} else if ok {
		c.EdgeCase.AutoPauseOnCritical = b
	}
	if d, ok, err := envDuration(op, "MEDIC_EDGECASE_RAPID_REPEAT_WINDOW"); err != nil {
		return err
	} else if ok {
		c.EdgeCase.RapidRepeatWindow = d
	}
	if n, ok, err := envInt(op, "MEDIC_EDGECASE_RAPID_REPEAT_THRESHOLD"); err != nil {
		return err
	} else if ok {
		c.EdgeCase.RapidRepeatThreshold = n
	}
	if n, ok, err := envInt(op, "MEDIC_EDGECASE_HISTORY_CAPACITY"); err != nil {
		return err
	} else if ok {
		c.EdgeCase.HistoryCapacity = n
	}
	return nil
}

func (c *Config) loadNegotiationVetoSelfMonEnv(op string) error {
	if d, ok, err := envDuration(op, "MEDIC_NEGOTIATION_TIMEOUT"); err != nil {
		return err
	} else if ok {
		c.Negotiation.TimeoutSeconds = d
	}
	if n, ok, err := envInt(op, "MEDIC_NEGOTIATION_HISTORY_CAPACITY"); err != nil {
		return err
	} else if ok {
		c.Negotiation.HistoryCapacity = n
	}

	if b, ok, err := envBool(op, "MEDIC_VETO_ENABLED"); err != nil {
		return err
	} else if ok {
		c.Veto.Enabled = b
	}
	if n, ok, err := envInt(op, "MEDIC_VETO_MIN_FP"); err != nil {
		return err
	} else if ok {
		c.Veto.MinFPForVeto = n
	}
	if f, ok, err := envFloat(op, "MEDIC_VETO_MAX_RISK"); err != nil {
		return err
	} else if ok {
		c.Veto.MaxRiskForVeto = f
	}
	if n, ok, err := envInt(op, "MEDIC_VETO_MAX_PER_HOUR"); err != nil {
		return err
	} else if ok {
		c.Veto.MaxVetosPerHour = n
	}
	if d, ok, err := envDuration(op, "MEDIC_VETO_COOLDOWN"); err != nil {
		return err
	} else if ok {
		c.Veto.VetoCooldownSeconds = d
	}
	if d, ok, err := envDuration(op, "MEDIC_VETO_RECENT_RESURRECTION_WINDOW"); err != nil {
		return err
	} else if ok {
		c.Veto.RecentResurrectionWindow = d
	}
	if n, ok, err := envInt(op, "MEDIC_VETO_CRITICAL_DEPENDENCY_THRESHOLD"); err != nil {
		return err
	} else if ok {
		c.Veto.CriticalDependencyThreshold = n
	}

	if d, ok, err := envDuration(op, "MEDIC_SELFMON_SAMPLE_INTERVAL"); err != nil {
		return err
	} else if ok {
		c.SelfMonitor.SampleInterval = d
	}
	if n, ok, err := envInt(op, "MEDIC_SELFMON_MAX_AUTO_REMEDIATIONS_PER_HOUR"); err != nil {
		return err
	} else if ok {
		c.SelfMonitor.MaxAutoRemediationsPerHour = n
	}
	return nil
}

func (c *Config) loadClusterEnv(op string) error {
	if v, ok := envString("MEDIC_CLUSTER_ID"); ok {
		c.Cluster.ClusterID = v
	}
	if v, ok := envString("MEDIC_CLUSTER_STORE"); ok {
		c.Cluster.Store = v
	}
	if v, ok := envString("MEDIC_CLUSTER_REDIS_URL,REDIS_URL"); ok {
		c.Cluster.RedisURL = v
	}
	for _, f := range []struct {
		name string
		dst *time.Duration
	}{
		{"MEDIC_CLUSTER_ELECTION_INTERVAL", &c.Cluster.ElectionInterval},
		{"MEDIC_CLUSTER_LEADER_TTL", &c.Cluster.LeaderTTL},
		{"MEDIC_CLUSTER_SYNC_INTERVAL", &c.Cluster.SyncInterval},
		{"MEDIC_CLUSTER_HEARTBEAT_INTERVAL", &c.Cluster.HeartbeatInterval},
	} {
		if d, ok, err := envDuration(op, f.name); err != nil {
			return err
		} else if ok {
			*f.dst = d
		}
	}
	if n, ok, err := envInt(op, "MEDIC_CLUSTER_MAX_EVENTS"); err != nil {
		return err
	} else if ok {
		c.Cluster.MaxEvents = n
	}
	return nil
}

// Validate checks invariants that must hold regardless of how the config was
// assembled: risk weights must be non-negative and summing close to 1.0,
// thresholds must be strictly increasing, backend names must be known values,
// and each remote backend must have its URL set.
func (c *Config) Validate() error {
	const op = "config.Validate"
	weights := []float64{
		c.Risk.WeightKillerConfidence, c.Risk.WeightIntelRisk, c.Risk.WeightFalsePositiveHistory,
		c.Risk.WeightModuleCriticality, c.Risk.WeightSeverity, c.Risk.WeightDependencyPressure,
		c.Risk.WeightThreatIndicators,
	}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return agenterr.New(op, agenterr.KindConfiguration, "risk weights must be non-negative", nil)
		}
		sum += w
	}
	if sum < 0.99 || sum > 1.01 {
		return agenterr.New(op, agenterr.KindConfiguration,
			fmt.Sprintf("risk weights must sum to 1.0, got %.4f", sum), nil)
	}
	th := c.Risk
	if !(0 < th.ThresholdMinimal && th.ThresholdMinimal < th.ThresholdLow &&
		th.ThresholdLow < th.ThresholdMedium && th.ThresholdMedium < th.ThresholdHigh && th.ThresholdHigh < 1) {
		return agenterr.New(op, agenterr.KindConfiguration, "risk thresholds must be strictly increasing within (0,1)", nil)
	}
	if b := c.Stream.Backend; b != "redis" && b != "inprocess" {
		return agenterr.New(op, agenterr.KindConfiguration, fmt.Sprintf("unknown stream backend %q", b), nil)
	}
	if b := c.Intel.Backend; b != "http" && b != "inprocess" {
		return agenterr.New(op, agenterr.KindConfiguration, fmt.Sprintf("unknown intel backend %q", b), nil)
	}
	if b := c.Restarter.Backend; b != "http" && b != "inprocess" {
		return agenterr.New(op, agenterr.KindConfiguration, fmt.Sprintf("unknown restarter backend %q", b), nil)
	}
	if s := c.Cluster.Store; s != "redis" && s != "inprocess" && s != "none" {
		return agenterr.New(op, agenterr.KindConfiguration, fmt.Sprintf("unknown cluster store %q", s), nil)
	}
	if c.Cluster.Store == "redis" && c.Cluster.RedisURL == "" {
		return agenterr.New(op, agenterr.KindConfiguration, "redis URL required when cluster store is redis", nil)
	}
	if c.Stream.Backend == "redis" && c.Stream.RedisURL == "" {
		return agenterr.New(op, agenterr.KindConfiguration, "redis URL required when stream backend is redis", nil)
	}
	if c.Intel.Backend == "http" && c.Intel.BaseURL == "" {
		return agenterr.New(op, agenterr.KindConfiguration, "base URL required when intel backend is http", nil)
	}
	if c.Restarter.Backend == "http" && c.Restarter.BaseURL == "" {
		return agenterr.New(op, agenterr.KindConfiguration, "base URL required when restarter backend is http", nil)
	}
	switch c.Telemetry.Exporter {
	case "stdout", "none":
	default:
		return agenterr.New(op, agenterr.KindConfiguration, fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter), nil)
	}
	return nil
}

// New assembles a Config using the three-layer priority: defaults, then
// environment variables, then functional options, validating the result.
func New(opts...Option) (*Config, error) {
	cfg := Default()
	if path := os.Getenv("MEDIC_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithAgentID sets the agent's stable identifier.
func WithAgentID(id string) Option {
	return func(c *Config) error { c.AgentID = id; return nil }
}

// WithClusterID sets the cluster coordinator's identifier.
func WithClusterID(id string) Option {
	return func(c *Config) error { c.Cluster.ClusterID = id; return nil }
}
