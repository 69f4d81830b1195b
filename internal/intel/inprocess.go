package intel

import (
	"context"
	"sync"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// InProcess is a fake Backend for tests: canned per-module contexts, an
// append-only outcome log, and a toggleable failure mode.
type InProcess struct {
	mu        sync.Mutex
	contexts  map[string]models.IntelContext
	history   map[string][]models.OutcomeRecord
	outcomes  []models.OutcomeRecord
	Unhealthy bool
}

// NewInProcess returns an empty fake backend.
func NewInProcess() *InProcess {
	return &InProcess{
		contexts: make(map[string]models.IntelContext),
		history:  make(map[string][]models.OutcomeRecord),
	}
}

// SetContext stages the context returned for QueryContext on the given
// module.
func (f *InProcess) SetContext(module string, ctxVal models.IntelContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[module] = ctxVal
}

func (f *InProcess) QueryContext(_ context.Context, report models.KillReport) (models.IntelContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unhealthy {
		return models.IntelContext{}, errUnhealthy
	}
	if c, ok := f.contexts[report.TargetModule]; ok {
		return c, nil
	}
	return models.DefaultIntelContext(report.KillID, report.Timestamp), nil
}

func (f *InProcess) GetHistory(_ context.Context, module string) ([]models.OutcomeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unhealthy {
		return nil, errUnhealthy
	}
	return append([]models.OutcomeRecord(nil), f.history[module]...), nil
}

func (f *InProcess) ReportOutcome(_ context.Context, outcome models.OutcomeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unhealthy {
		return errUnhealthy
	}
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *InProcess) HealthCheck(_ context.Context) error {
	if f.Unhealthy {
		return errUnhealthy
	}
	return nil
}

// Outcomes returns every outcome reported so far, for test assertions.
func (f *InProcess) Outcomes() []models.OutcomeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutcomeRecord(nil), f.outcomes...)
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errUnhealthy = fakeErr("intel backend unavailable")
