// Package redisstore is the Redis-backed coordination.Store: a SET-NX
// leader lock, a sorted-set event log, and TTL'd per-cluster acked sets,
// following standard Redis client conventions (URL parsing, Ping-based
// connection check, namespaced keys).
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/coordination"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

var _ coordination.Store = (*Store)(nil)

// Store is a coordination.Store backed by Redis.
type Store struct {
	client *redis.Client
	namespace string
	logger agentlog.Logger

	recordTTL time.Duration
	ackedTTL time.Duration
	maxEvents int64
}

// Options configures a Store.
type Options struct {
	RedisURL string
	Namespace string
	// RecordTTL bounds how long a cluster membership record survives
	// without a refreshing heartbeat; defaults to 5 minutes, spanning
	// several heartbeat_interval cycles
	RecordTTL time.Duration
	// AckedTTL bounds how long an acked event ID is remembered, standing in
	// for the bounded acked-event ledger the in-process store keeps
	// explicitly.
	AckedTTL time.Duration
	MaxEvents int64
	Logger agentlog.Logger
}

// New connects to Redis and constructs a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "medic"
	}
	recordTTL := opts.RecordTTL
	if recordTTL <= 0 {
		recordTTL = 5 * time.Minute
	}
	ackedTTL := opts.AckedTTL
	if ackedTTL <= 0 {
		ackedTTL = time.Hour
	}
	maxEvents := opts.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 500
	}

	if opts.Logger != nil {
		opts.Logger.Info("redis coordination store ready", agentlog.Fields{"namespace": namespace})
	}

	return &Store{
		client: client, namespace: namespace, logger: opts.Logger,
		recordTTL: recordTTL, ackedTTL: ackedTTL, maxEvents: maxEvents,
	}, nil
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) clusterKey(id string) string { return fmt.Sprintf("%s:cluster:%s", s.namespace, id) }
func (s *Store) clustersIndexKey() string { return fmt.Sprintf("%s:clusters", s.namespace) }
func (s *Store) leaderKey() string { return fmt.Sprintf("%s:leader", s.namespace) }
func (s *Store) eventsKey() string { return fmt.Sprintf("%s:events", s.namespace) }
func (s *Store) ackedKey(clusterID string) string {
	return fmt.Sprintf("%s:acked:%s", s.namespace, clusterID)
}

func (s *Store) RegisterCluster(ctx context.Context, record models.ClusterRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal cluster record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.clusterKey(record.ClusterID), data, s.recordTTL)
	pipe.SAdd(ctx, s.clustersIndexKey(), record.ClusterID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) UpdateCluster(ctx context.Context, record models.ClusterRecord) error {
	return s.RegisterCluster(ctx, record)
}

func (s *Store) DeregisterCluster(ctx context.Context, clusterID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.clusterKey(clusterID))
	pipe.SRem(ctx, s.clustersIndexKey(), clusterID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) ListClusters(ctx context.Context) ([]models.ClusterRecord, error) {
	ids, err := s.client.SMembers(ctx, s.clustersIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers clusters: %w", err)
	}
	var out []models.ClusterRecord
	for _, id := range ids {
		record, ok, err := s.GetCluster(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record)
		} else {
			s.client.SRem(ctx, s.clustersIndexKey(), id)
		}
	}
	return out, nil
}

func (s *Store) GetCluster(ctx context.Context, clusterID string) (models.ClusterRecord, bool, error) {
	data, err := s.client.Get(ctx, s.clusterKey(clusterID)).Bytes()
	if err == redis.Nil {
		return models.ClusterRecord{}, false, nil
	}
	if err != nil {
		return models.ClusterRecord{}, false, fmt.Errorf("get cluster %s: %w", clusterID, err)
	}
	var record models.ClusterRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return models.ClusterRecord{}, false, fmt.Errorf("unmarshal cluster %s: %w", clusterID, err)
	}
	return record, true, nil
}

// acquireScript atomically takes the leader key if unheld, or refreshes the
// lease if clusterID already holds it.
const acquireScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
 redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
 return 1
end
if redis.call("GET", KEYS[1]) == ARGV[1] then
 redis.call("PEXPIRE", KEYS[1], ARGV[2])
 return 1
end
return 0
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
 return redis.call("DEL", KEYS[1])
end
return 0
`

func (s *Store) AcquireLeaderLock(ctx context.Context, clusterID string, ttl time.Duration) (bool, error) {
	res, err := s.client.Eval(ctx, acquireScript, []string{s.leaderKey()}, clusterID, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("acquire leader lock: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (s *Store) ReleaseLeaderLock(ctx context.Context, clusterID string) error {
	_, err := s.client.Eval(ctx, releaseScript, []string{s.leaderKey()}, clusterID).Result()
	if err != nil {
		return fmt.Errorf("release leader lock: %w", err)
	}
	return nil
}

func (s *Store) GetLeader(ctx context.Context) (string, bool, error) {
	holder, err := s.client.Get(ctx, s.leaderKey()).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get leader: %w", err)
	}
	return holder, true, nil
}

func (s *Store) PushSyncEvent(ctx context.Context, event models.SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}
	score := float64(event.PublishedAt.UnixNano())
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.eventsKey(), &redis.Z{Score: score, Member: data})
	pipe.ZRemRangeByRank(ctx, s.eventsKey(), 0, -s.maxEvents-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetPendingEvents(ctx context.Context, clusterID string, limit int) ([]models.SyncEvent, error) {
	members, err := s.client.ZRange(ctx, s.eventsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange events: %w", err)
	}
	acked, err := s.client.SMembers(ctx, s.ackedKey(clusterID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("smembers acked: %w", err)
	}
	ackedSet := make(map[string]bool, len(acked))
	for _, id := range acked {
		ackedSet[id] = true
	}

	var out []models.SyncEvent
	for _, raw := range members {
		var event models.SyncEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		if event.PublishedBy == clusterID || ackedSet[event.EventID] {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AckEvent(ctx context.Context, clusterID string, eventID string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.ackedKey(clusterID), eventID)
	pipe.Expire(ctx, s.ackedKey(clusterID), s.ackedTTL)
	_, err := pipe.Exec(ctx)
	return err
}
