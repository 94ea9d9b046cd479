// Package config loads configuration for the coordinator and worker
// binaries. Values come from an optional YAML file, with environment
// variables taking precedence, and are validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Coordinator holds all configuration for the coordinator process.
type Coordinator struct {
	ListenAddr        string        `yaml:"listen_addr"`
	LogLevel          string        `yaml:"log_level"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // expected worker heartbeat period
	SuspectAfter      time.Duration `yaml:"suspect_after"`      // heartbeat age before SUSPECT
	FailAfter         time.Duration `yaml:"fail_after"`         // heartbeat age before FAILED
	ResultTimeout     time.Duration `yaml:"result_timeout"`     // deadline for a dispatched chunk's report
}

// Worker holds all configuration for a worker process.
type Worker struct {
	ID                string        `yaml:"id"`
	ListenAddr        string        `yaml:"listen_addr"`
	PublicAddr        string        `yaml:"public_addr"`
	CoordinatorAddr   string        `yaml:"coordinator_addr"`
	LogLevel          string        `yaml:"log_level"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// LoadCoordinator builds the coordinator configuration: defaults, then
// the YAML file named by COORDINATOR_CONFIG (if any), then environment
// variables.
func LoadCoordinator() (*Coordinator, error) {
	cfg := &Coordinator{
		ListenAddr:        ":8080",
		LogLevel:          "info",
		HeartbeatInterval: 5 * time.Second,
		SuspectAfter:      10 * time.Second,
		FailAfter:         15 * time.Second,
		ResultTimeout:     30 * time.Second,
	}

	if path := os.Getenv("COORDINATOR_CONFIG"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = getEnv("COORDINATOR_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	var err error
	if cfg.HeartbeatInterval, err = getEnvDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return nil, err
	}
	if cfg.SuspectAfter, err = getEnvDuration("SUSPECT_AFTER", cfg.SuspectAfter); err != nil {
		return nil, err
	}
	if cfg.FailAfter, err = getEnvDuration("FAIL_AFTER", cfg.FailAfter); err != nil {
		return nil, err
	}
	if cfg.ResultTimeout, err = getEnvDuration("RESULT_TIMEOUT", cfg.ResultTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks coordinator configuration invariants.
func (c *Coordinator) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.SuspectAfter <= c.HeartbeatInterval {
		return fmt.Errorf("suspect_after (%v) must exceed heartbeat_interval (%v)", c.SuspectAfter, c.HeartbeatInterval)
	}
	if c.FailAfter <= c.SuspectAfter {
		return fmt.Errorf("fail_after (%v) must exceed suspect_after (%v)", c.FailAfter, c.SuspectAfter)
	}
	if c.ResultTimeout <= 0 {
		return fmt.Errorf("result_timeout must be positive, got %v", c.ResultTimeout)
	}
	return nil
}

// LoadWorker builds a worker configuration: defaults, then the YAML file
// named by WORKER_CONFIG (if any), then environment variables. A worker
// without an explicit ID gets a generated one.
func LoadWorker() (*Worker, error) {
	cfg := &Worker{
		ListenAddr:        ":8081",
		PublicAddr:        "http://127.0.0.1:8081",
		LogLevel:          "info",
		HeartbeatInterval: 5 * time.Second,
	}

	if path := os.Getenv("WORKER_CONFIG"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ID = getEnv("WORKER_ID", cfg.ID)
	cfg.ListenAddr = getEnv("WORKER_LISTEN", cfg.ListenAddr)
	cfg.PublicAddr = getEnv("WORKER_ADDR", cfg.PublicAddr)
	cfg.CoordinatorAddr = getEnv("COORDINATOR_ADDR", cfg.CoordinatorAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	var err error
	if cfg.HeartbeatInterval, err = getEnvDuration("HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return nil, err
	}

	if cfg.ID == "" {
		cfg.ID = "worker-" + uuid.New().String()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks worker configuration invariants.
func (w *Worker) Validate() error {
	if w.CoordinatorAddr == "" {
		return fmt.Errorf("coordinator_addr is required (set COORDINATOR_ADDR)")
	}
	if w.PublicAddr == "" {
		return fmt.Errorf("public_addr must not be empty")
	}
	if w.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", w.HeartbeatInterval)
	}
	return nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return d, nil
}
