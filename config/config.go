package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Queue      QueueConfig      `yaml:"queue"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Stream     StreamConfig     `yaml:"stream"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// QueueConfig tunes the token queue engine.
type QueueConfig struct {
	// UTCOffsetMinutes fixes the hospital's local business-day boundary.
	UTCOffsetMinutes  int `yaml:"utc_offset_minutes"`
	HorizonDays       int `yaml:"horizon_days"`
	SlotMinutes       int `yaml:"slot_minutes"`
	AllocationRetries int `yaml:"allocation_retries"`
	ScoreBand         int `yaml:"score_band"`
	PreviewTTLSeconds int `yaml:"preview_ttl_seconds"`
}

// PreviewTTL returns the preview cache lifetime as a duration.
func (q QueueConfig) PreviewTTL() time.Duration {
	return time.Duration(q.PreviewTTLSeconds) * time.Second
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// StreamConfig holds the optional Kafka event stream settings.
type StreamConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Queue.HorizonDays <= 0 {
		cfg.Queue.HorizonDays = 5
	}
	if cfg.Queue.SlotMinutes <= 0 {
		cfg.Queue.SlotMinutes = 10
	}
	if cfg.Queue.AllocationRetries <= 0 {
		cfg.Queue.AllocationRetries = 3
	}
	if cfg.Queue.ScoreBand <= 0 {
		cfg.Queue.ScoreBand = 100000
	}
	if cfg.Queue.PreviewTTLSeconds <= 0 {
		cfg.Queue.PreviewTTLSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.Stream.Enabled && cfg.Stream.Topic == "" {
		cfg.Stream.Topic = "ticket-events"
	}

	return &cfg, nil
}
