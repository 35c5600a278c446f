package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/runwatch/internal/classify"
	"github.com/loykin/runwatch/internal/logger"
)

// Defaults for the tunable budgets. They satisfy the bounded-retry rules
// but carry no other meaning.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultSweepMaxAge  = 24 * time.Hour
)

// Config is the full watchdog configuration.
type Config struct {
	BaseDir       string          `toml:"base_dir" mapstructure:"base_dir"`
	Source        string          `toml:"source" mapstructure:"source"` // auto, poll, netlink
	PollInterval  time.Duration   `toml:"poll_interval" mapstructure:"poll_interval"`
	ArtifactGrace time.Duration   `toml:"artifact_grace" mapstructure:"artifact_grace"`
	SweepMaxAge   time.Duration   `toml:"sweep_max_age" mapstructure:"sweep_max_age"`
	Rules         []classify.Rule `toml:"rules" mapstructure:"rules"`
	EventLog      EventLogConfig  `toml:"event_log" mapstructure:"event_log"`
	Log           *logger.Config  `toml:"log" mapstructure:"log"`
	Metrics       *MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History       *HistoryConfig  `toml:"history" mapstructure:"history"`
}

// EventLogConfig tunes event log rotation.
type EventLogConfig struct {
	MaxSizeBytes int64 `toml:"max_size_bytes" mapstructure:"max_size_bytes"`
	MaxBackups   int   `toml:"max_backups" mapstructure:"max_backups"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig selects an optional terminal-run history sink.
type HistoryConfig struct {
	Backend string `toml:"backend" mapstructure:"backend"` // sqlite, postgres
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		BaseDir:      filepath.Join(home, ".runwatch"),
		Source:       "auto",
		PollInterval: DefaultPollInterval,
		// ArtifactGrace stays zero here; Validate derives it from the
		// poll interval.
		SweepMaxAge: DefaultSweepMaxAge,
		Rules:       classify.DefaultRules(),
		Log:         &logger.Config{Stdout: true},
	}
}

// Load parses a TOML config file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes empty tunables.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must be set")
	}
	switch c.Source {
	case "", "auto", "poll", "netlink":
	default:
		return fmt.Errorf("unknown source %q (want auto, poll, or netlink)", c.Source)
	}
	if c.Source == "" {
		c.Source = "auto"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ArtifactGrace <= 0 {
		c.ArtifactGrace = c.PollInterval
	}
	if c.SweepMaxAge <= 0 {
		c.SweepMaxAge = DefaultSweepMaxAge
	}
	if len(c.Rules) == 0 {
		c.Rules = classify.DefaultRules()
	}
	if _, err := classify.New(c.Rules); err != nil {
		return err
	}
	return nil
}

// Matcher compiles the configured classification rules. Falls back to
// the built-in rules when compilation fails, which Validate prevents.
func (c *Config) Matcher() *classify.Matcher {
	m, err := classify.New(c.Rules)
	if err != nil {
		return classify.Default()
	}
	return m
}

// LogsDir is where the event log and diagnostics live.
func (c *Config) LogsDir() string { return filepath.Join(c.BaseDir, "logs") }

// EndpointsDir holds the per-run endpoint descriptors.
func (c *Config) EndpointsDir() string { return filepath.Join(c.BaseDir, "endpoints") }

// ReportsDir holds the per-run test-framework reports.
func (c *Config) ReportsDir() string { return filepath.Join(c.BaseDir, "reports") }

// EventLogPath is the active event log file.
func (c *Config) EventLogPath() string { return filepath.Join(c.LogsDir(), "events.jsonl") }

// EnsureDirs creates the runtime directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.LogsDir(), c.EndpointsDir(), c.ReportsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
