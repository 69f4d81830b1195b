package coordination

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// InProcessStore is a single-process Store, used for tests and single-node
// deployments where no external coordination backend is needed.
type InProcessStore struct {
	mu sync.Mutex
	now func() time.Time

	clusters map[string]models.ClusterRecord

	leaderHolder string
	leaderExpiry time.Time

	maxEvents int
	events []models.SyncEvent

	ackedOrder map[string][]string // clusterID -> acked event IDs, oldest first
	ackedSet map[string]map[string]bool // clusterID -> acked event ID set
	ackCap int
}

// NewInProcessStore constructs an InProcessStore. maxEvents bounds the
// event log and the per-cluster acked-event set.
func NewInProcessStore(maxEvents int) *InProcessStore {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &InProcessStore{
		now: time.Now,
		clusters: make(map[string]models.ClusterRecord),
		maxEvents: maxEvents,
		ackedOrder: make(map[string][]string),
		ackedSet: make(map[string]map[string]bool),
		ackCap: maxEvents,
	}
}

func (s *InProcessStore) RegisterCluster(ctx context.Context, record models.ClusterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[record.ClusterID] = record
	return nil
}

func (s *InProcessStore) DeregisterCluster(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clusters, clusterID)
	if s.leaderHolder == clusterID {
		s.leaderHolder = ""
		s.leaderExpiry = time.Time{}
	}
	return nil
}

func (s *InProcessStore) UpdateCluster(ctx context.Context, record models.ClusterRecord) error {
	return s.RegisterCluster(ctx, record)
}

func (s *InProcessStore) ListClusters(ctx context.Context) ([]models.ClusterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClusterRecord, 0, len(s.clusters))
	ids := make([]string, 0, len(s.clusters))
	for id := range s.clusters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, s.clusters[id])
	}
	return out, nil
}

func (s *InProcessStore) GetCluster(ctx context.Context, clusterID string) (models.ClusterRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.clusters[clusterID]
	return record, ok, nil
}

func (s *InProcessStore) AcquireLeaderLock(ctx context.Context, clusterID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if s.leaderHolder == "" || now.After(s.leaderExpiry) || s.leaderHolder == clusterID {
		s.leaderHolder = clusterID
		s.leaderExpiry = now.Add(ttl)
		return true, nil
	}
	return false, nil
}

func (s *InProcessStore) ReleaseLeaderLock(ctx context.Context, clusterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaderHolder == clusterID {
		s.leaderHolder = ""
		s.leaderExpiry = time.Time{}
	}
	return nil
}

func (s *InProcessStore) GetLeader(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	if s.leaderHolder != "" && now.Before(s.leaderExpiry) {
		return s.leaderHolder, true, nil
	}
	return "", false, nil
}

func (s *InProcessStore) PushSyncEvent(ctx context.Context, event models.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.maxEvents {
		s.events = s.events[len(s.events)-s.maxEvents:]
	}
	return nil
}

func (s *InProcessStore) GetPendingEvents(ctx context.Context, clusterID string, limit int) ([]models.SyncEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acked := s.ackedSet[clusterID]
	var out []models.SyncEvent
	for _, e := range s.events {
		if e.PublishedBy == clusterID {
			continue
		}
		if acked != nil && acked[e.EventID] {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InProcessStore) AckEvent(ctx context.Context, clusterID string, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ackedSet[clusterID] == nil {
		s.ackedSet[clusterID] = make(map[string]bool)
	}
	if s.ackedSet[clusterID][eventID] {
		return nil
	}
	s.ackedSet[clusterID][eventID] = true
	s.ackedOrder[clusterID] = append(s.ackedOrder[clusterID], eventID)

	if len(s.ackedOrder[clusterID]) > s.ackCap {
		evictCount := len(s.ackedOrder[clusterID]) - s.ackCap
		for _, stale := range s.ackedOrder[clusterID][:evictCount] {
			delete(s.ackedSet[clusterID], stale)
		}
		s.ackedOrder[clusterID] = s.ackedOrder[clusterID][evictCount:]
	}
	return nil
}
