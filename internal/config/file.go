package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kase1111-hash/medic-agent/internal/agenterr"
)

// fileConfig mirrors the subset of Config an operator is likely to pin in a
// checked-in file rather than an environment variable: process identity and
// backend selection. Everything else stays environment/option-only. Zero
// values are "not set" and leave the corresponding Config field at its
// current (default) value.
type fileConfig struct {
	AgentID   string `yaml:"agent_id"`
	Namespace string `yaml:"namespace"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Stream struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
		StreamKey string `yaml:"stream_key"`
	} `yaml:"stream"`

	Intel struct {
		Backend string `yaml:"backend"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"intel"`

	Restarter struct {
		Backend string        `yaml:"backend"`
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"restarter"`

	Cluster struct {
		Store    string `yaml:"store"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"cluster"`

	Admin struct {
		ListenAddr string `yaml:"listen_addr"`
		OperatorID string `yaml:"operator_id"`
	} `yaml:"admin"`

	Telemetry struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
		Exporter    string `yaml:"exporter"`
	} `yaml:"telemetry"`
}

// LoadFromFile overlays non-zero fields from the YAML file at path onto c.
// It is applied beneath environment variables: New() calls it before
// LoadFromEnv, so an environment variable set alongside a config file always
// wins.
func (c *Config) LoadFromFile(path string) error {
	const op = "config.LoadFromFile"
	data, err := os.ReadFile(path)
	if err != nil {
		return agenterr.New(op, agenterr.KindConfiguration, "reading config file", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return agenterr.New(op, agenterr.KindConfiguration, "parsing config file", err)
	}

	if fc.AgentID != "" {
		c.AgentID = fc.AgentID
	}
	if fc.Namespace != "" {
		c.Namespace = fc.Namespace
	}
	if fc.Logging.Level != "" {
		c.Logging.Level = fc.Logging.Level
	}
	if fc.Logging.Format != "" {
		c.Logging.Format = fc.Logging.Format
	}
	if fc.Stream.Backend != "" {
		c.Stream.Backend = fc.Stream.Backend
	}
	if fc.Stream.RedisURL != "" {
		c.Stream.RedisURL = fc.Stream.RedisURL
	}
	if fc.Stream.StreamKey != "" {
		c.Stream.StreamKey = fc.Stream.StreamKey
	}
	if fc.Intel.Backend != "" {
		c.Intel.Backend = fc.Intel.Backend
	}
	if fc.Intel.BaseURL != "" {
		c.Intel.BaseURL = fc.Intel.BaseURL
	}
	if fc.Restarter.Backend != "" {
		c.Restarter.Backend = fc.Restarter.Backend
	}
	if fc.Restarter.BaseURL != "" {
		c.Restarter.BaseURL = fc.Restarter.BaseURL
	}
	if fc.Restarter.Timeout != 0 {
		c.Restarter.Timeout = fc.Restarter.Timeout
	}
	if fc.Cluster.Store != "" {
		c.Cluster.Store = fc.Cluster.Store
	}
	if fc.Cluster.RedisURL != "" {
		c.Cluster.RedisURL = fc.Cluster.RedisURL
	}
	if fc.Admin.ListenAddr != "" {
		c.Admin.ListenAddr = fc.Admin.ListenAddr
	}
	if fc.Admin.OperatorID != "" {
		c.Admin.OperatorID = fc.Admin.OperatorID
	}
	if fc.Telemetry.Enabled {
		c.Telemetry.Enabled = true
	}
	if fc.Telemetry.ServiceName != "" {
		c.Telemetry.ServiceName = fc.Telemetry.ServiceName
	}
	if fc.Telemetry.Exporter != "" {
		c.Telemetry.Exporter = fc.Telemetry.Exporter
	}
	return nil
}
