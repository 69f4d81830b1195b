package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

func proposal(urgency models.Severity, expiresAt time.Time) models.ResurrectionProposal {
	return models.ResurrectionProposal{
		Decision:   models.ResurrectionDecision{DecisionID: "d1", KillID: "k1"},
		KillReport: models.KillReport{KillID: "k1", TargetModule: "payments", TargetInstanceID: "payments-0"},
		Urgency:    urgency,
		ExpiresAt:  expiresAt,
	}
}

func TestEnqueueAndApprove(t *testing.T) {
	q := New(10, "", nil)
	id, err := q.Enqueue(proposal(models.SeverityHigh, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	req, err := q.Approve(id, "operator-1", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, "operator-1", req.ApprovedBy)
	assert.Equal(t, models.StatusPending, req.Status)

	_, err = q.Approve(id, "operator-2", "again")
	assert.Error(t, err, "approving a non-pending item should fail")
}

func TestListPendingOrdersByPriorityThenCreation(t *testing.T) {
	q := New(10, "", nil)
	lowID, _ := q.Enqueue(proposal(models.SeverityLow, time.Now().Add(time.Hour)))
	time.Sleep(time.Millisecond)
	criticalID, _ := q.Enqueue(proposal(models.SeverityCritical, time.Now().Add(time.Hour)))

	pending := q.ListPending(0)
	require.Len(t, pending, 2)
	assert.Equal(t, criticalID, pending[0].ItemID)
	assert.Equal(t, lowID, pending[1].ItemID)
}

func TestEnqueueRejectsAtCapacity(t *testing.T) {
	q := New(1, "", nil)
	_, err := q.Enqueue(proposal(models.SeverityLow, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = q.Enqueue(proposal(models.SeverityLow, time.Now().Add(time.Hour)))
	assert.Error(t, err)
}

func TestExpiredItemCannotBeApproved(t *testing.T) {
	q := New(10, "", nil)
	id, err := q.Enqueue(proposal(models.SeverityLow, time.Now().Add(-time.Second)))
	require.NoError(t, err)

	_, err = q.Approve(id, "operator-1", "")
	assert.Error(t, err)

	item, err := q.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueItemExpired, item.Status)
}

func TestLifecycleCallbacksFire(t *testing.T) {
	q := New(10, "", nil)
	var events []LifecycleEvent
	q.OnLifecycleEvent(func(event LifecycleEvent, item models.QueueItem) {
		events = append(events, event)
	})

	id, _ := q.Enqueue(proposal(models.SeverityLow, time.Now().Add(time.Hour)))
	_, err := q.Approve(id, "operator-1", "")
	require.NoError(t, err)

	assert.Equal(t, []LifecycleEvent{EventEnqueued, EventApproved}, events)
}

func TestDenyTransitionsToDenied(t *testing.T) {
	q := New(10, "", nil)
	id, _ := q.Enqueue(proposal(models.SeverityMedium, time.Now().Add(time.Hour)))
	require.NoError(t, q.Deny(id, "operator-1", "not safe"))

	item, err := q.GetItem(id)
	require.NoError(t, err)
	assert.Equal(t, models.QueueItemDenied, item.Status)
}
