// Package edgecase implements the edge-case manager: five
// kill-stream pattern detectors running against a trailing 1-hour history,
// with highest-severity-wins resolution and a global auto-resurrection
// pause flag.
package edgecase

import (
	"sort"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Fixed detector windows not exposed as config: only the rapid-repeat
// detector's window/threshold are tunable (config.EdgeCaseConfig); the
// others are spec-fixed constants.
const (
	cascadingWindow = 120 * time.Second
	cascadingMinKills = 5
	cascadingMinModules = 3
	cascadingMinDependencyCascade = 2

	flappingWindow = 30 * time.Minute
	flappingMinKills = 4
	flappingMeanInterArrival = 120 * time.Second

	systemWideWindow = 300 * time.Second
	systemWideMinModules = 10

	circularWindow = 120 * time.Second
	circularMinDeps = 2
)

// Manager detects anomalous kill-stream patterns and gates auto-resurrection
// accordingly.
type Manager struct {
	cfg config.EdgeCaseConfig
	logger agentlog.Logger
	now func() time.Time

	mu sync.Mutex
	history []models.KillReport
	activeByType map[models.EdgeCaseType]*models.EdgeCase
	paused bool
	pauseReason string
}

// New constructs a Manager.
func New(cfg config.EdgeCaseConfig, logger agentlog.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		logger: logger,
		now: time.Now,
		activeByType: make(map[models.EdgeCaseType]*models.EdgeCase),
	}
}

// ProcessKillReport appends report to the trailing history, runs all
// detectors, and returns the highest-severity match, if any.
func (m *Manager) ProcessKillReport(report models.KillReport) *models.EdgeCase {
	m.mu.Lock()

	now := report.Timestamp.UTC()
	if now.IsZero() {
		now = m.now().UTC()
	}
	m.history = append(m.history, report)
	m.trimLocked(now)

	var candidates []*models.EdgeCase
	if ec := m.detectRapidRepeated(now); ec != nil {
		candidates = append(candidates, ec)
	}
	if ec := m.detectCascading(now); ec != nil {
		candidates = append(candidates, ec)
	}
	if ec := m.detectFlapping(now); ec != nil {
		candidates = append(candidates, ec)
	}
	if ec := m.detectSystemWide(now); ec != nil {
		candidates = append(candidates, ec)
	}
	if ec := m.detectCircular(report, now); ec != nil {
		candidates = append(candidates, ec)
	}

	best := highestSeverity(candidates)
	if best != nil {
		m.activeByType[best.Type] = best
		if m.cfg.AutoPauseOnCritical && best.Severity == models.EdgeCaseSeverityCritical {
			m.pauseLocked(string(best.Type))
		}
	}
	m.mu.Unlock()

	if best != nil && m.logger != nil {
		m.logger.Warn("edge case detected", agentlog.Fields{
			"type": string(best.Type), "severity": string(best.Severity), "action": string(best.RecommendedAction),
		})
	}
	return best
}

// trimLocked drops entries older than 1 hour and caps the buffer at the
// configured capacity (default 500).
func (m *Manager) trimLocked(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for ; i < len(m.history); i++ {
		if m.history[i].Timestamp.After(cutoff) {
			break
		}
	}
	m.history = m.history[i:]

	capacity := m.cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = 500
	}
	if len(m.history) > capacity {
		m.history = m.history[len(m.history)-capacity:]
	}
}

func (m *Manager) detectRapidRepeated(now time.Time) *models.EdgeCase {
	window := m.cfg.RapidRepeatWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	threshold := m.cfg.RapidRepeatThreshold
	if threshold <= 0 {
		threshold = 3
	}
	cutoff := now.Add(-window)

	ids := map[string][]string{}
	for _, r := range m.history {
		if r.Timestamp.After(cutoff) {
			ids[r.TargetModule] = append(ids[r.TargetModule], r.KillID)
		}
	}
	for _, module := range sortedKeys(ids) {
		if len(ids[module]) >= threshold {
			return &models.EdgeCase{
				Type: models.EdgeCaseRapidRepeatedKills, Severity: models.EdgeCaseSeverityHigh,
				DetectedAt: now, AffectedModules: []string{module}, AffectedKillIDs: ids[module],
				RecommendedAction: models.ActionPauseAutoResurrection,
			}
		}
	}
	return nil
}

func (m *Manager) detectCascading(now time.Time) *models.EdgeCase {
	cutoff := now.Add(-cascadingWindow)
	modulesSet := map[string]bool{}
	var ids []string
	depCascadeCount := 0
	for _, r := range m.history {
		if !r.Timestamp.After(cutoff) {
			continue
		}
		modulesSet[r.TargetModule] = true
		ids = append(ids, r.KillID)
		if r.KillReason == models.KillReasonDependencyCascade {
			depCascadeCount++
		}
	}
	if (len(ids) >= cascadingMinKills && len(modulesSet) >= cascadingMinModules) || depCascadeCount >= cascadingMinDependencyCascade {
		return &models.EdgeCase{
			Type: models.EdgeCaseCascadingFailure, Severity: models.EdgeCaseSeverityCritical,
			DetectedAt: now, AffectedModules: sortedKeySet(modulesSet), AffectedKillIDs: ids,
			RecommendedAction: models.ActionEscalateImmediately,
		}
	}
	return nil
}

func (m *Manager) detectFlapping(now time.Time) *models.EdgeCase {
	cutoff := now.Add(-flappingWindow)
	byModule := map[string][]models.KillReport{}
	for _, r := range m.history {
		if r.Timestamp.After(cutoff) {
			byModule[r.TargetModule] = append(byModule[r.TargetModule], r)
		}
	}
	for _, module := range sortedModuleKeys(byModule) {
		kills := byModule[module]
		if len(kills) < flappingMinKills {
			continue
		}
		sort.Slice(kills, func(i, j int) bool { return kills[i].Timestamp.Before(kills[j].Timestamp) })
		span := kills[len(kills)-1].Timestamp.Sub(kills[0].Timestamp)
		mean := span / time.Duration(len(kills)-1)
		if mean > flappingMeanInterArrival {
			ids := make([]string, len(kills))
			for i, k := range kills {
				ids[i] = k.KillID
			}
			return &models.EdgeCase{
				Type: models.EdgeCaseFlappingModule, Severity: models.EdgeCaseSeverityMedium,
				DetectedAt: now, AffectedModules: []string{module}, AffectedKillIDs: ids,
				RecommendedAction: models.ActionRequireHumanReview,
			}
		}
	}
	return nil
}

func (m *Manager) detectSystemWide(now time.Time) *models.EdgeCase {
	cutoff := now.Add(-systemWideWindow)
	modulesSet := map[string]bool{}
	var ids []string
	for _, r := range m.history {
		if r.Timestamp.After(cutoff) {
			modulesSet[r.TargetModule] = true
			ids = append(ids, r.KillID)
		}
	}
	if len(modulesSet) >= systemWideMinModules {
		return &models.EdgeCase{
			Type: models.EdgeCaseSystemWideAnomaly, Severity: models.EdgeCaseSeverityCritical,
			DetectedAt: now, AffectedModules: sortedKeySet(modulesSet), AffectedKillIDs: ids,
			RecommendedAction: models.ActionEscalateImmediately,
		}
	}
	return nil
}

func (m *Manager) detectCircular(report models.KillReport, now time.Time) *models.EdgeCase {
	if report.KillReason != models.KillReasonDependencyCascade || len(report.Dependencies) == 0 {
		return nil
	}
	cutoff := now.Add(-circularWindow)
	var killedDeps []string
	for _, dep := range report.Dependencies {
		for _, r := range m.history {
			if r.KillID == report.KillID {
				continue
			}
			if r.TargetModule == dep && r.Timestamp.After(cutoff) {
				killedDeps = append(killedDeps, dep)
				break
			}
		}
	}
	if len(killedDeps) >= circularMinDeps {
		return &models.EdgeCase{
			Type: models.EdgeCaseCircularDependency, Severity: models.EdgeCaseSeverityHigh,
			DetectedAt: now, AffectedModules: append([]string{report.TargetModule}, killedDeps...),
			AffectedKillIDs: []string{report.KillID},
			RecommendedAction: models.ActionCoordinateWithKiller,
		}
	}
	return nil
}

func highestSeverity(candidates []*models.EdgeCase) *models.EdgeCase {
	var best *models.EdgeCase
	for _, c := range candidates {
		if best == nil || c.Severity.Rank() > best.Severity.Rank() {
			best = c
		}
	}
	return best
}

// PauseAutoResurrection sets the global pause flag with an operator- or
// detector-supplied reason.
func (m *Manager) PauseAutoResurrection(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseLocked(reason)
}

func (m *Manager) pauseLocked(reason string) {
	m.paused = true
	m.pauseReason = reason
}

// ResumeAutoResurrection clears the global pause flag.
func (m *Manager) ResumeAutoResurrection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.pauseReason = ""
}

// IsAutoResurrectionPaused reports the current global pause state.
func (m *Manager) IsAutoResurrectionPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// ShouldAllowAutoResurrection reports whether module is currently clear of
// the global pause flag and any unresolved edge case naming it.
func (m *Manager) ShouldAllowAutoResurrection(module string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		return false, m.pauseReason
	}
	for _, t := range sortedEdgeCaseTypes(m.activeByType) {
		ec := m.activeByType[t]
		if !ec.Resolved && containsString(ec.AffectedModules, module) {
			return false, string(ec.Type)
		}
	}
	return true, ""
}

// Gate adapts ShouldAllowAutoResurrection to the admission package's
// EdgeCaseGate signature (true means forbid).
func (m *Manager) Gate() func(module string) bool {
	return func(module string) bool {
		allow, _ := m.ShouldAllowAutoResurrection(module)
		return !allow
	}
}

// ResolveEdgeCase marks an active edge case resolved, so it no longer gates
// auto-resurrection for its affected modules.
func (m *Manager) ResolveEdgeCase(t models.EdgeCaseType, resolution string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ec, ok := m.activeByType[t]
	if !ok || ec.Resolved {
		return false
	}
	now := m.now().UTC()
	ec.Resolved = true
	ec.ResolvedAt = &now
	ec.Resolution = resolution
	return true
}

// ActiveEdgeCases returns a snapshot of all currently unresolved edge cases.
func (m *Manager) ActiveEdgeCases() []models.EdgeCase {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EdgeCase
	for _, t := range sortedEdgeCaseTypes(m.activeByType) {
		ec := m.activeByType[t]
		if !ec.Resolved {
			out = append(out, *ec)
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeySet(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedModuleKeys(m map[string][]models.KillReport) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedEdgeCaseTypes(m map[models.EdgeCaseType]*models.EdgeCase) []models.EdgeCaseType {
	keys := make([]models.EdgeCaseType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
