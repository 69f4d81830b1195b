package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kase1111-hash/medic-agent/internal/agentlog"
	"github.com/kase1111-hash/medic-agent/internal/config"
	"github.com/kase1111-hash/medic-agent/internal/models"
)

// EventHandler processes one dispatched SyncEvent.
type EventHandler func(event models.SyncEvent)

// allScope is the pseudo-scope whose handlers receive every event,
// regardless of its actual scope.
const allScope = "ALL"

// Coordinator runs leader election, membership heartbeats, and event
// fan-out for one agent instance against a Store backend.
type Coordinator struct {
	cfg config.ClusterConfig
	store Store
	clusterID string
	logger agentlog.Logger
	now func() time.Time

	mu sync.Mutex
	role models.ClusterRole
	handlers map[string][]EventHandler
	cancel context.CancelFunc
	wg sync.WaitGroup
	started bool
}

// New constructs a Coordinator. If cfg.ClusterID is empty a random ID is
// generated.
func New(cfg config.ClusterConfig, store Store, logger agentlog.Logger) *Coordinator {
	clusterID := cfg.ClusterID
	if clusterID == "" {
		clusterID = uuid.NewString()
	}
	return &Coordinator{
		cfg: cfg, store: store, clusterID: clusterID, logger: logger, now: time.Now,
		role: models.RoleObserver, handlers: make(map[string][]EventHandler),
	}
}

// RegisterHandler registers fn to receive every dispatched event whose
// scope matches scope, or every event if scope is empty.
func (c *Coordinator) RegisterHandler(scope string, fn EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := scope
	if key == "" {
		key = allScope
	}
	c.handlers[key] = append(c.handlers[key], fn)
}

// Start begins the coordinator's heartbeat, election, and sync loops. It
// returns once the initial self-registration succeeds.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	now := c.now().UTC()
	if err := c.store.RegisterCluster(ctx, models.ClusterRecord{
		ClusterID: c.clusterID, Role: c.Role(), LastSeen: now,
	}); err != nil {
		return err
	}

	c.wg.Add(3)
	go c.runLoop(runCtx, c.cfg.HeartbeatInterval, 10*time.Second, c.heartbeatTick)
	go c.runLoop(runCtx, c.cfg.ElectionInterval, 15*time.Second, c.electionTick)
	go c.runLoop(runCtx, c.cfg.SyncInterval, 5*time.Second, c.syncTick)

	if c.logger != nil {
		c.logger.Info("cluster coordinator started", agentlog.Fields{"cluster_id": c.clusterID})
	}
	return nil
}

// Stop cancels the coordinator's background loops, waits for them to exit,
// and releases the leader lock if this instance held it.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.started = false
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	return c.store.ReleaseLeaderLock(ctx, c.clusterID)
}

func (c *Coordinator) runLoop(ctx context.Context, interval, fallback time.Duration, tick func(ctx context.Context)) {
	defer c.wg.Done()
	if interval <= 0 {
		interval = fallback
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (c *Coordinator) heartbeatTick(ctx context.Context) {
	record := models.ClusterRecord{ClusterID: c.clusterID, Role: c.Role(), LastSeen: c.now().UTC()}
	if err := c.store.UpdateCluster(ctx, record); err != nil && c.logger != nil {
		c.logger.Warn("cluster heartbeat failed", agentlog.Fields{"error": err.Error()})
	}
}

func (c *Coordinator) electionTick(ctx context.Context) {
	ttl := c.cfg.LeaderTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	leader, ok, err := c.store.GetLeader(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("leader lookup failed", agentlog.Fields{"error": err.Error()})
		}
		return
	}

	if ok && leader != c.clusterID {
		c.setRole(models.RoleFollower)
		return
	}

	acquired, err := c.store.AcquireLeaderLock(ctx, c.clusterID, ttl)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("leader lock acquisition failed", agentlog.Fields{"error": err.Error()})
		}
		return
	}
	if acquired {
		c.setRole(models.RoleLeader)
	} else if ok {
		c.setRole(models.RoleFollower)
	} else {
		c.setRole(models.RoleCandidate)
	}
}

func (c *Coordinator) syncTick(ctx context.Context) {
	events, err := c.store.GetPendingEvents(ctx, c.clusterID, 100)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("pending event lookup failed", agentlog.Fields{"error": err.Error()})
		}
		return
	}
	for _, event := range events {
		c.dispatch(event)
		if err := c.store.AckEvent(ctx, c.clusterID, event.EventID); err != nil && c.logger != nil {
			c.logger.Warn("event ack failed", agentlog.Fields{"event_id": event.EventID, "error": err.Error()})
		}
	}
}

func (c *Coordinator) dispatch(event models.SyncEvent) {
	c.mu.Lock()
	handlers := append(append([]EventHandler(nil), c.handlers[event.Scope]...), c.handlers[allScope]...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(event)
	}
}

func (c *Coordinator) setRole(role models.ClusterRole) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// Role returns the coordinator's current role.
func (c *Coordinator) Role() models.ClusterRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// ClusterID returns this instance's cluster ID.
func (c *Coordinator) ClusterID() string { return c.clusterID }

// PublishEvent pushes a new event into the store, fanned out to every
// other cluster's sync loop.
func (c *Coordinator) PublishEvent(ctx context.Context, scope, action string, data map[string]interface{}) (string, error) {
	event := models.SyncEvent{
		EventID: uuid.NewString(), Scope: scope, Action: action, Data: data,
		PublishedBy: c.clusterID, PublishedAt: c.now().UTC(),
	}
	if err := c.store.PushSyncEvent(ctx, event); err != nil {
		return "", err
	}
	return event.EventID, nil
}

// GetClusters returns every known cluster membership record.
func (c *Coordinator) GetClusters(ctx context.Context) ([]models.ClusterRecord, error) {
	return c.store.ListClusters(ctx)
}

// GetLeader returns the current leader's cluster ID, if any.
func (c *Coordinator) GetLeader(ctx context.Context) (string, bool, error) {
	return c.store.GetLeader(ctx)
}
