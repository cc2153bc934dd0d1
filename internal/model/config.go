package model

import (
	"fmt"
	"os"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Workers   []WorkerEntry   `yaml:"workers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Session   SessionConfig   `yaml:"session"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// WorkerEntry is one record of the worker/capability manifest.
type WorkerEntry struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
}

type SchedulerConfig struct {
	TaskTimeoutSec  int `yaml:"task_timeout_sec"`  // per-attempt timeout
	DrainTimeoutSec int `yaml:"drain_timeout_sec"` // in-flight wait on cancel
	MaxInFlight     int `yaml:"max_in_flight"`     // 0 means pool size
}

type SessionConfig struct {
	MergeThreshold float64 `yaml:"merge_threshold"` // completion ratio gate
	JournalDir     string  `yaml:"journal_dir"`
	BaseRef        string  `yaml:"base_ref"`
}

type HealthConfig struct {
	RetryBudget     int `yaml:"retry_budget"`      // extra attempts per task
	WindowSec       int `yaml:"window_sec"`        // trailing failure window
	CooldownSec     int `yaml:"cooldown_sec"`      // quiet period per step-down
	MinimalAfter    int `yaml:"minimal_after"`     // failures in window per level
	ModerateAfter   int `yaml:"moderate_after"`
	SevereAfter     int `yaml:"severe_after"`
	EmergencyAfter  int `yaml:"emergency_after"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			TaskTimeoutSec:  300,
			DrainTimeoutSec: 30,
		},
		Session: SessionConfig{
			MergeThreshold: 0.8,
			JournalDir:     ".descent/sessions",
			BaseRef:        "main",
		},
		Health: HealthConfig{
			RetryBudget:    2,
			WindowSec:      120,
			CooldownSec:    60,
			MinimalAfter:   2,
			ModerateAfter:  4,
			SevereAfter:    6,
			EmergencyAfter: 10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Scheduler.TaskTimeoutSec <= 0 {
		c.Scheduler.TaskTimeoutSec = def.Scheduler.TaskTimeoutSec
	}
	if c.Scheduler.DrainTimeoutSec <= 0 {
		c.Scheduler.DrainTimeoutSec = def.Scheduler.DrainTimeoutSec
	}
	if c.Session.MergeThreshold <= 0 {
		c.Session.MergeThreshold = def.Session.MergeThreshold
	}
	if c.Session.JournalDir == "" {
		c.Session.JournalDir = def.Session.JournalDir
	}
	if c.Session.BaseRef == "" {
		c.Session.BaseRef = def.Session.BaseRef
	}
	if c.Health.RetryBudget == 0 {
		c.Health.RetryBudget = def.Health.RetryBudget
	}
	if c.Health.WindowSec <= 0 {
		c.Health.WindowSec = def.Health.WindowSec
	}
	if c.Health.CooldownSec <= 0 {
		c.Health.CooldownSec = def.Health.CooldownSec
	}
	if c.Health.MinimalAfter <= 0 {
		c.Health.MinimalAfter = def.Health.MinimalAfter
	}
	if c.Health.ModerateAfter <= 0 {
		c.Health.ModerateAfter = def.Health.ModerateAfter
	}
	if c.Health.SevereAfter <= 0 {
		c.Health.SevereAfter = def.Health.SevereAfter
	}
	if c.Health.EmergencyAfter <= 0 {
		c.Health.EmergencyAfter = def.Health.EmergencyAfter
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}

func (c *Config) Validate() error {
	if c.Session.MergeThreshold < 0 || c.Session.MergeThreshold > 1 {
		return fmt.Errorf("session.merge_threshold must be in [0,1], got %v", c.Session.MergeThreshold)
	}
	if c.Health.RetryBudget < 0 {
		return fmt.Errorf("health.retry_budget must be >= 0, got %d", c.Health.RetryBudget)
	}
	seen := make(map[string]bool, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("worker manifest entry with empty id")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate worker id %q in manifest", w.ID)
		}
		seen[w.ID] = true
	}
	return nil
}

// TaskTimeout returns the per-attempt timeout as a duration.
func (c SchedulerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSec) * time.Second
}

// DrainTimeout returns the cancellation drain window as a duration.
func (c SchedulerConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSec) * time.Second
}
