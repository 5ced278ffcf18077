package config

import (
	"fmt"
	"os"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all AdLens configuration.
type Config struct {
	Listen   string             `yaml:"listen"`
	DBPath   string             `yaml:"db_path"`
	Backends []BackendConfig    `yaml:"backends"`
	Cache    CacheConfig        `yaml:"cache"`
	Stream   StreamConfig       `yaml:"stream"`
	Quota    QuotaConfig        `yaml:"quota"`
	Audit    models.AuditConfig `yaml:"audit"`
}

// BackendConfig defines an upstream insights API endpoint. Backends are
// tried in order until one answers.
type BackendConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// CacheConfig controls the answer caches. TTL applies to the persistent
// store, MemoryTTL to the in-process cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	TTL       time.Duration `yaml:"ttl"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
}

// StreamConfig controls the agent event stream subscription. Exactly one
// of AgentID or WorkspaceID selects the subscription scope.
type StreamConfig struct {
	URL            string        `yaml:"url"`
	AgentID        string        `yaml:"agent_id"`
	WorkspaceID    string        `yaml:"workspace_id"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxReconnects  int           `yaml:"max_reconnects"`
	Buffer         int           `yaml:"buffer"`
}

// QuotaConfig controls per-scope ask quotas.
type QuotaConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Policies []models.QuotaPolicy `yaml:"policies"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8090",
		DBPath: "adlens.db",
		Cache: CacheConfig{
			Enabled:   true,
			TTL:       time.Hour,
			MemoryTTL: 5 * time.Minute,
		},
		Stream: StreamConfig{
			Heartbeat:      30 * time.Second,
			ReconnectDelay: 3 * time.Second,
			MaxReconnects:  5,
			Buffer:         100,
		},
		Quota: QuotaConfig{
			Enabled: false,
		},
		Audit: models.AuditConfig{
			DBPath:        "adlens_audit.db",
			RetentionDays: 30,
			Include:       []string{"questions", "answers"},
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
