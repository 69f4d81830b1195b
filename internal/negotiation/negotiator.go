// Package negotiation implements the Killer negotiation protocols: a
// request/reply state machine for agent-initiated consultations, plus
// synchronous handlers for unsolicited Killer messages.
package negotiation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Reply is the Killer's answer to an outbound negotiation message.
type Reply struct {
	Status  string
	Payload map[string]interface{}
}

// Transport delivers an outbound negotiation message to the Killer and
// returns a channel that yields its reply. The channel is closed without a
// value if the Killer never replies; Negotiate applies its own timeout
// regardless.
type Transport interface {
	Send(ctx context.Context, negotiationType models.NegotiationType, subject map[string]interface{}) (<-chan Reply, error)
}

// Negotiator drives request/reply negotiations with the Killer and answers
// its unsolicited messages.
type Negotiator struct {
	cfg       config.NegotiationConfig
	transport Transport
	logger    agentlog.Logger
	now       func() time.Time

	mu                sync.Mutex
	history           []models.Negotiation
	thresholdHandler  func(map[string]interface{})
}

// New constructs a Negotiator.
func New(cfg config.NegotiationConfig, transport Transport, logger agentlog.Logger) *Negotiator {
	return &Negotiator{cfg: cfg, transport: transport, logger: logger, now: time.Now}
}

// Negotiate sends negotiationType with subject to the Killer and waits for a
// reply up to the configured timeout, returning the completed transcript.
func (n *Negotiator) Negotiate(ctx context.Context, negotiationType models.NegotiationType, initiatedBy string, subject map[string]interface{}) (models.Negotiation, error) {
	now := n.now().UTC()
	neg := models.Negotiation{
		NegotiationID: uuid.NewString(),
		Type:          negotiationType,
		State:         models.NegotiationAwaitingResponse,
		InitiatedBy:   initiatedBy,
		Subject:       subject,
		Messages: []models.NegotiationMessage{
			{SentAt: now, Direction: "outbound", Kind: string(negotiationType), Payload: subject},
		},
	}

	replyCh, err := n.transport.Send(ctx, negotiationType, subject)
	if err != nil {
		neg.State = models.NegotiationCancelled
		n.record(neg)
		return neg, err
	}

	timeout := n.cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			n.finalizeTimeout(&neg)
			break
		}
		n.finalizeReply(&neg, reply)
	case <-time.After(timeout):
		n.finalizeTimeout(&neg)
	case <-ctx.Done():
		neg.State = models.NegotiationCancelled
	}

	n.record(neg)
	return neg, nil
}

func (n *Negotiator) finalizeTimeout(neg *models.Negotiation) {
	neg.State = models.NegotiationTimeout
	outcome := models.NegotiationOutcomeNoResponse
	neg.Outcome = &outcome
}

func (n *Negotiator) finalizeReply(neg *models.Negotiation, reply Reply) {
	neg.Messages = append(neg.Messages, models.NegotiationMessage{
		SentAt: n.now().UTC(), Direction: "inbound", Kind: reply.Status, Payload: reply.Payload,
	})
	outcome := models.ClassifyResponseStatus(reply.Status)
	neg.Outcome = &outcome
	switch outcome {
	case models.NegotiationOutcomeApproved:
		neg.State = models.NegotiationAgreed
	case models.NegotiationOutcomeDenied:
		neg.State = models.NegotiationDisagreed
	case models.NegotiationOutcomeConditional, models.NegotiationOutcomeDeferred:
		neg.State = models.NegotiationInDiscussion
	default:
		neg.State = models.NegotiationTimeout
	}
}

func (n *Negotiator) record(neg models.Negotiation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	capacity := n.cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = 500
	}
	n.history = append(n.history, neg)
	if len(n.history) > capacity {
		n.history = n.history[len(n.history)-capacity:]
	}
}

// History returns the recorded negotiation transcripts, most recent last.
func (n *Negotiator) History() []models.Negotiation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Negotiation(nil), n.history...)
}

// HandlePreKillNotification answers an unsolicited pre_kill_notification
// synchronously: no objection above the confidence cutoff, else a request
// for review.
func (n *Negotiator) HandlePreKillNotification(killerConfidence float64) string {
	if killerConfidence > 0.8 {
		return "no_objection"
	}
	return "request_review"
}

// OnThresholdProposal registers the handler threshold proposals are
// forwarded to.
func (n *Negotiator) OnThresholdProposal(fn func(map[string]interface{})) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.thresholdHandler = fn
}

// HandleThresholdProposal forwards proposal to the registered threshold
// channel, if any, and acknowledges synchronously.
func (n *Negotiator) HandleThresholdProposal(proposal map[string]interface{}) string {
	n.mu.Lock()
	fn := n.thresholdHandler
	n.mu.Unlock()
	if fn != nil {
		fn(proposal)
	}
	return "acknowledged/will_review"
}
