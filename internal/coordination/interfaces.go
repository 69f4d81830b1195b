// Package coordination implements the cluster coordinator:
// leader election, membership tracking, and scope-based event fan-out
// across a fleet of agents, behind a pluggable ClusterStore so the same
// coordinator logic runs against an in-process store (tests, single-node)
// or Redis (production).
package coordination

import (
	"context"
	"time"

	"github.com/kase1111-hash/medic-agent/internal/models"
)

// Store abstracts the cluster membership, leader-lock, and event-log
// backend. All atomicity (leader lock acquisition, event ack) is delegated
// to the implementation.
type Store interface {
	RegisterCluster(ctx context.Context, record models.ClusterRecord) error
	DeregisterCluster(ctx context.Context, clusterID string) error
	UpdateCluster(ctx context.Context, record models.ClusterRecord) error
	ListClusters(ctx context.Context) ([]models.ClusterRecord, error)
	GetCluster(ctx context.Context, clusterID string) (models.ClusterRecord, bool, error)

	// AcquireLeaderLock attempts to atomically become leader (SET-NX
	// semantics), or to refresh the lease if clusterID already holds it.
	AcquireLeaderLock(ctx context.Context, clusterID string, ttl time.Duration) (bool, error)
	ReleaseLeaderLock(ctx context.Context, clusterID string) error
	GetLeader(ctx context.Context) (string, bool, error)

	PushSyncEvent(ctx context.Context, event models.SyncEvent) error
	// GetPendingEvents returns up to limit events not yet acked by
	// clusterID and not published by it.
	GetPendingEvents(ctx context.Context, clusterID string, limit int) ([]models.SyncEvent, error)
	AckEvent(ctx context.Context, clusterID string, eventID string) error
}
