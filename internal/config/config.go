// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type QueueConfig struct {
	// PollTimeout bounds a single blocking dequeue; it is also the worker
	// loop's cancellation granularity.
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	RecoveryInterval  time.Duration `yaml:"recovery_interval"`
	MaxRetries        int           `yaml:"max_retries"`
}

type WorkerConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ZombieTimeout     time.Duration `yaml:"zombie_timeout"`
	ShutdownDeadline  time.Duration `yaml:"shutdown_deadline"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
}

type HTTPConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // bearer key for mutating admin routes
}

type BackendConfig struct {
	// BaseURL of the AI processing gateway; empty selects the noop backend.
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Worker   WorkerConfig   `yaml:"worker"`
	HTTP     HTTPConfig     `yaml:"http"`
	Backend  BackendConfig  `yaml:"backend"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()

	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Queue.MaxRetries < 1 {
		return nil, errors.New("queue.max_retries must be at least 1")
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Queue.PollTimeout <= 0 {
		cfg.Queue.PollTimeout = 5 * time.Second
	}
	if cfg.Queue.VisibilityTimeout <= 0 {
		cfg.Queue.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.Queue.RecoveryInterval <= 0 {
		cfg.Queue.RecoveryInterval = cfg.Queue.VisibilityTimeout
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Worker.HeartbeatInterval <= 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Worker.ZombieTimeout <= 0 {
		cfg.Worker.ZombieTimeout = 2 * time.Minute
	}
	if cfg.Worker.ShutdownDeadline <= 0 {
		cfg.Worker.ShutdownDeadline = 30 * time.Second
	}
	if cfg.Worker.InitialBackoff <= 0 {
		cfg.Worker.InitialBackoff = 2 * time.Second
	}
	if cfg.Worker.MaxBackoff <= 0 {
		cfg.Worker.MaxBackoff = 30 * time.Second
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 2 * time.Minute
	}
}
