package negotiation

import (
	"context"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// ContextProvider supplies the module-level facts the veto protocol weighs
// that a bare VetoRequest doesn't carry.
type ContextProvider interface {
	FalsePositiveHistory(ctx context.Context, module string) (int, error)
	RiskScore(ctx context.Context, module string) (float64, error)
}

// VetoManager implements the pre-kill veto protocol.
type VetoManager struct {
	cfg config.VetoConfig
	provider ContextProvider
	logger agentlog.Logger
	now func() time.Time

	mu sync.Mutex
	vetoTimestamps []time.Time
	moduleCooldown map[string]time.Time
	lastSuccess map[string]time.Time
}

// NewVetoManager constructs a VetoManager.
func NewVetoManager(cfg config.VetoConfig, provider ContextProvider, logger agentlog.Logger) *VetoManager {
	return &VetoManager{
		cfg: cfg, provider: provider, logger: logger, now: time.Now,
		moduleCooldown: make(map[string]time.Time),
		lastSuccess: make(map[string]time.Time),
	}
}

// RecordSuccessfulResurrection notes that module was successfully
// resurrected at the given time, feeding the "recent successful
// resurrection" veto reason.
func (v *VetoManager) RecordSuccessfulResurrection(module string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastSuccess[module] = at.UTC()
}

// HandleVetoRequest evaluates req against the veto decision algorithm.
func (v *VetoManager) HandleVetoRequest(ctx context.Context, req models.VetoRequest) models.VetoResponse {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.cfg.Enabled {
		return models.VetoResponse{Decision: models.VetoApproveKill, Reasons: []string{"veto protocol disabled"}}
	}

	now := v.now().UTC()
	var reasons []string

	fpHistory := 0
	if v.provider != nil {
		if n, err := v.provider.FalsePositiveHistory(ctx, req.TargetModule); err == nil {
			fpHistory = n
		}
	}
	minFP := v.cfg.MinFPForVeto
	if minFP <= 0 {
		minFP = 3
	}
	if fpHistory >= minFP {
		reasons = append(reasons, "false_positive_history")
	}

	recentWindow := v.cfg.RecentResurrectionWindow
	if recentWindow <= 0 {
		recentWindow = time.Hour
	}
	if last, ok := v.lastSuccess[req.TargetModule]; ok && now.Sub(last) < recentWindow {
		reasons = append(reasons, "recent_successful_resurrection")
	}

	if v.provider != nil {
		if score, err := v.provider.RiskScore(ctx, req.TargetModule); err == nil {
			maxRisk := v.cfg.MaxRiskForVeto
			if maxRisk <= 0 {
				maxRisk = 0.3
			}
			if score < maxRisk {
				reasons = append(reasons, "low_risk_score")
			}
		}
	}

	depThreshold := v.cfg.CriticalDependencyThreshold
	if depThreshold <= 0 {
		depThreshold = 6
	}
	if len(req.Dependencies) >= depThreshold {
		reasons = append(reasons, "critical_dependency_count")
	}

	wouldHaveVetoed := len(reasons) >= 2

	if v.isRateLimitedLocked(now, req.TargetModule) {
		if wouldHaveVetoed {
			return models.VetoResponse{
				Decision: models.VetoApproveKill, Reasons: reasons,
				Conditions: map[string]interface{}{"would_have_vetoed": true},
			}
		}
	}

	if req.KillerConfidence > 0.9 {
		return models.VetoResponse{Decision: models.VetoApproveKill, Reasons: reasons}
	}

	if wouldHaveVetoed {
		v.recordVetoLocked(now, req.TargetModule)
		return models.VetoResponse{Decision: models.VetoVeto, Reasons: reasons}
	}

	if len(reasons) == 1 {
		return models.VetoResponse{Decision: models.VetoDelay, Reasons: reasons, DelaySeconds: 30}
	}

	return models.VetoResponse{
		Decision: models.VetoConditional, Reasons: reasons,
		Conditions: map[string]interface{}{"monitor_after_kill": true, "alert_on_reoccurrence": true},
	}
}

func (v *VetoManager) isRateLimitedLocked(now time.Time, module string) bool {
	maxPerHour := v.cfg.MaxVetosPerHour
	if maxPerHour <= 0 {
		maxPerHour = 10
	}
	cutoff := now.Add(-time.Hour)
	count := 0
	for _, t := range v.vetoTimestamps {
		if t.After(cutoff) {
			count++
		}
	}
	if count >= maxPerHour {
		return true
	}

	cooldown := v.cfg.VetoCooldownSeconds
	if cooldown <= 0 {
		cooldown = 300 * time.Second
	}
	if last, ok := v.moduleCooldown[module]; ok && now.Sub(last) < cooldown {
		return true
	}
	return false
}

func (v *VetoManager) recordVetoLocked(now time.Time, module string) {
	v.vetoTimestamps = append(v.vetoTimestamps, now)
	v.moduleCooldown[module] = now
}
