package models

import "time"

// ClusterRecord is one agent's membership record in the cluster store.
type ClusterRecord struct {
	ClusterID string `json:"cluster_id"`
	Role ClusterRole `json:"role"`
	LastSeen time.Time `json:"last_seen"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Unreachable reports whether the record's last heartbeat is older than
// 3x the heartbeat interval.
func (c ClusterRecord) Unreachable(now time.Time, heartbeatInterval time.Duration) bool {
	return now.Sub(c.LastSeen) > 3*heartbeatInterval
}

// SyncEvent is one fan-out event published through the cluster store.
type SyncEvent struct {
	EventID string `json:"event_id"`
	Scope string `json:"scope"`
	Action string `json:"action"`
	Data map[string]interface{} `json:"data,omitempty"`
	PublishedBy string `json:"published_by"`
	PublishedAt time.Time `json:"published_at"`
}
