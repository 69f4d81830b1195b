package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// InProcess is an in-memory Reader/Writer used by tests and single-process
// deployments, implementing the same consumer-group ack semantics as
// RedisStream without a Redis dependency.
type InProcess struct {
	mu      sync.Mutex
	nextID  int64
	queue   []Message
	pending map[string]Message
	closed  bool
}

// NewInProcess returns an empty in-memory stream.
func NewInProcess() *InProcess {
	return &InProcess{pending: make(map[string]Message)}
}

func (s *InProcess) Add(ctx context.Context, fields models.WireEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("stream closed")
	}
	s.nextID++
	id := fmt.Sprintf("%d-0", s.nextID)
	s.queue = append(s.queue, Message{ID: id, Fields: fields})
	return id, nil
}

func (s *InProcess) ReadGroup(ctx context.Context, block time.Duration, count int) ([]Message, error) {
	deadline := time.Now().Add(block)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, fmt.Errorf("stream closed")
		}
		if len(s.queue) > 0 {
			n := count
			if n > len(s.queue) || n <= 0 {
				n = len(s.queue)
			}
			batch := s.queue[:n]
			s.queue = s.queue[n:]
			for _, m := range batch {
				s.pending[m.ID] = m
			}
			s.mu.Unlock()
			return batch, nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *InProcess) Ack(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (s *InProcess) Pending(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *InProcess) Claim(ctx context.Context, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[id]
	if !ok {
		return Message{}, fmt.Errorf("message %s not pending", id)
	}
	return m, nil
}

func (s *InProcess) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	return nil
}

func (s *InProcess) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
