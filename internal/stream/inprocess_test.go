package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

func TestInProcessAddReadAck(t *testing.T) {
	s := NewInProcess()
	ctx := context.Background()

	id, err := s.Add(ctx, models.WireEntry{"kill_id": "k1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := s.ReadGroup(ctx, 50*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pending)

	require.NoError(t, s.Ack(ctx, id))

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInProcessReadGroupTimesOutEmpty(t *testing.T) {
	s := NewInProcess()
	msgs, err := s.ReadGroup(context.Background(), 20*time.Millisecond, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestInProcessClaimPending(t *testing.T) {
	s := NewInProcess()
	ctx := context.Background()
	id, _ := s.Add(ctx, models.WireEntry{"kill_id": "k1"})
	_, err := s.ReadGroup(ctx, 50*time.Millisecond, 10)
	require.NoError(t, err)

	msg, err := s.Claim(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "k1", msg.Fields["kill_id"])
}

func TestInProcessCloseRejectsFurtherUse(t *testing.T) {
	s := NewInProcess()
	require.NoError(t, s.Close())
	_, err := s.Add(context.Background(), models.WireEntry{})
	assert.Error(t, err)
}
