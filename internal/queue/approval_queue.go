// Package queue implements the approval queue: a capacity-
// bounded, priority-ordered store of pending ResurrectionProposals awaiting
// operator review, with sweep-on-read expiration and lifecycle callbacks.
package queue

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// LifecycleEvent identifies a queue item transition for callback dispatch.
type LifecycleEvent string

const (
	EventEnqueued LifecycleEvent = "enqueued"
	EventApproved LifecycleEvent = "approved"
	EventDenied LifecycleEvent = "denied"
	EventExpired LifecycleEvent = "expired"
)

// Callback is invoked outside the queue's lock on every lifecycle
// transition, so a slow callback does not block other queue operations.
// Callbacks run synchronously on the calling goroutine: the triggering call
// returns only after they do, and a panic in a callback reaches the caller.
type Callback func(event LifecycleEvent, item models.QueueItem)

// Stats summarizes queue occupancy.
type Stats struct {
	Pending int
	Total int
}

// Queue is the approval queue. Safe for concurrent use.
type Queue struct {
	mu sync.Mutex
	items map[string]*models.QueueItem
	maxPending int
	persistPath string
	logger agentlog.Logger
	callbacks []Callback
	now func() time.Time
}

// New constructs an empty Queue with the given pending-item capacity.
func New(maxPending int, persistPath string, logger agentlog.Logger) *Queue {
	if maxPending <= 0 {
		maxPending = 100
	}
	return &Queue{
		items: make(map[string]*models.QueueItem),
		maxPending: maxPending,
		persistPath: persistPath,
		logger: logger,
		now: time.Now,
	}
}

// OnLifecycleEvent registers a callback fired on every enqueue/approve/
// deny/expire transition.
func (q *Queue) OnLifecycleEvent(cb Callback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callbacks = append(q.callbacks, cb)
}

// Enqueue admits proposal as a new pending item, rejecting with a capacity
// error if the pending count is already at max_pending.
func (q *Queue) Enqueue(proposal models.ResurrectionProposal) (string, error) {
	q.mu.Lock()

	expired := q.sweepExpiredLocked()

	if q.pendingCountLocked() >= q.maxPending {
		q.mu.Unlock()
		q.fireExpired(expired)
		return "", agenterr.New("queue.Enqueue", agenterr.KindRateLimit, "approval queue is at capacity", agenterr.ErrCapacityExceeded)
	}

	item := &models.QueueItem{
		ItemID: uuid.NewString(),
		Proposal: proposal,
		Status: models.QueueItemPending,
		Priority: models.PriorityForUrgency(proposal.Urgency),
		CreatedAt: q.now().UTC(),
		ExpiresAt: proposal.ExpiresAt,
	}
	q.items[item.ItemID] = item
	q.persistLocked()

	snapshot := *item
	q.mu.Unlock()

	q.fireExpired(expired)
	q.fire(EventEnqueued, snapshot)
	return item.ItemID, nil
}

// GetItem returns the item by ID, sweeping expiry first.
func (q *Queue) GetItem(itemID string) (models.QueueItem, error) {
	q.mu.Lock()
	expired := q.sweepExpiredLocked()
	item, ok := q.items[itemID]
	var result models.QueueItem
	var err error
	if !ok {
		err = agenterr.New("queue.GetItem", agenterr.KindValidation, "item not found", agenterr.ErrNotFound)
	} else {
		result = *item
	}
	q.mu.Unlock()
	q.fireExpired(expired)
	return result, err
}

// ListPending returns up to limit pending items ordered by priority
// descending, then creation time ascending. limit <= 0 means
// unbounded.
func (q *Queue) ListPending(limit int) []models.QueueItem {
	q.mu.Lock()
	expired := q.sweepExpiredLocked()

	var pending []models.QueueItem
	for _, item := range q.items {
		if item.Status == models.QueueItemPending {
			pending = append(pending, *item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	q.mu.Unlock()
	q.fireExpired(expired)
	return pending
}

// Approve transitions item to APPROVED and returns the resulting
// ResurrectionRequest seed. Fails if the item is missing, already
// terminal, or has expired.
func (q *Queue) Approve(itemID, approver, notes string) (models.ResurrectionRequest, error) {
	q.mu.Lock()

	expired := q.sweepExpiredLocked()
	item, ok := q.items[itemID]
	if !ok {
		q.mu.Unlock()
		q.fireExpired(expired)
		return models.ResurrectionRequest{}, agenterr.New("queue.Approve", agenterr.KindValidation, "item not found", agenterr.ErrNotFound)
	}
	if item.Status != models.QueueItemPending {
		q.mu.Unlock()
		q.fireExpired(expired)
		return models.ResurrectionRequest{}, agenterr.New("queue.Approve", agenterr.KindValidation,
			"item is not pending", agenterr.ErrNotPending)
	}

	now := q.now().UTC()
	item.Status = models.QueueItemApproved
	item.ReviewedAt = &now
	item.ReviewedBy = approver
	item.ReviewNotes = notes
	q.persistLocked()

	snapshot := *item
	q.mu.Unlock()

	q.fireExpired(expired)
	q.fire(EventApproved, snapshot)

	request := models.ResurrectionRequest{
		RequestID: uuid.NewString(),
		DecisionID: item.Proposal.Decision.DecisionID,
		KillID: item.Proposal.KillReport.KillID,
		TargetModule: item.Proposal.KillReport.TargetModule,
		TargetInstanceID: item.Proposal.KillReport.TargetInstanceID,
		Status: models.StatusPending,
		CreatedAt: now,
		ApprovedAt: &now,
		ApprovedBy: approver,
	}
	return request, nil
}

// Deny transitions item to DENIED.
func (q *Queue) Deny(itemID, denier, reason string) error {
	q.mu.Lock()

	expired := q.sweepExpiredLocked()
	item, ok := q.items[itemID]
	if !ok {
		q.mu.Unlock()
		q.fireExpired(expired)
		return agenterr.New("queue.Deny", agenterr.KindValidation, "item not found", agenterr.ErrNotFound)
	}
	if item.Status != models.QueueItemPending {
		q.mu.Unlock()
		q.fireExpired(expired)
		return agenterr.New("queue.Deny", agenterr.KindValidation, "item is not pending", agenterr.ErrNotPending)
	}

	now := q.now().UTC()
	item.Status = models.QueueItemDenied
	item.ReviewedAt = &now
	item.ReviewedBy = denier
	item.ReviewNotes = reason
	q.persistLocked()

	snapshot := *item
	q.mu.Unlock()

	q.fireExpired(expired)
	q.fire(EventDenied, snapshot)
	return nil
}

// Stats returns current queue occupancy.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	expired := q.sweepExpiredLocked()
	stats := Stats{Pending: q.pendingCountLocked(), Total: len(q.items)}
	q.mu.Unlock()
	q.fireExpired(expired)
	return stats
}

func (q *Queue) pendingCountLocked() int {
	n := 0
	for _, item := range q.items {
		if item.Status == models.QueueItemPending {
			n++
		}
	}
	return n
}

// sweepExpiredLocked marks any pending item whose expires_at has passed as
// EXPIRED, returning snapshots of the newly-expired items so the caller can
// fire their lifecycle callbacks after releasing the lock.
func (q *Queue) sweepExpiredLocked() []models.QueueItem {
	now := q.now().UTC()
	var expired []models.QueueItem
	for _, item := range q.items {
		if item.Status == models.QueueItemPending && now.After(item.ExpiresAt) {
			item.Status = models.QueueItemExpired
			expired = append(expired, *item)
		}
	}
	if len(expired) > 0 {
		q.persistLocked()
	}
	return expired
}

func (q *Queue) persistLocked() {
	if q.persistPath == "" {
		return
	}
	items := make([]models.QueueItem, 0, len(q.items))
	for _, item := range q.items {
		items = append(items, *item)
	}
	data, err := json.MarshalIndent(items, "", " ")
	if err != nil {
		if q.logger != nil {
			q.logger.Warn("failed to marshal queue for persistence", agentlog.Fields{"error": err.Error()})
		}
		return
	}
	if err := os.WriteFile(q.persistPath, data, 0o600); err != nil && q.logger != nil {
		q.logger.Warn("failed to persist queue", agentlog.Fields{"error": err.Error(), "path": q.persistPath})
	}
}

func (q *Queue) fire(event LifecycleEvent, item models.QueueItem) {
	q.mu.Lock()
	cbs := append([]Callback(nil), q.callbacks...)
	q.mu.Unlock()
	for _, cb := range cbs {
		cb(event, item)
	}
}

func (q *Queue) fireExpired(expired []models.QueueItem) {
	for _, e := range expired {
		q.fire(EventExpired, e)
	}
}
