// Package recommendation enriches a ResurrectionDecision into a human
// reviewable ResurrectionProposal, bundling the kill report and
// intel context an operator needs to judge it without re-querying either.
package recommendation

import (
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Builder constructs ResurrectionProposals from decisions.
type Builder struct {
	now func() time.Time
}

// New returns a Builder using the real clock.
func New() *Builder {
	return &Builder{now: time.Now}
}

// Build enriches decision with report and intelCtx, computing priority
// urgency from the report's severity and an expiry from defaultExpiry.
func (b *Builder) Build(decision models.ResurrectionDecision, report models.KillReport, intelCtx models.IntelContext, defaultExpiry time.Duration) models.ResurrectionProposal {
	return models.ResurrectionProposal{
		Decision: decision,
		KillReport: report,
		IntelContext: intelCtx,
		Urgency: report.Severity,
		ExpiresAt: b.now().UTC().Add(defaultExpiry),
	}
}
