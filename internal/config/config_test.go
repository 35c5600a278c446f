package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
base_dir = "/var/lib/runwatch"
source = "poll"
poll_interval = "250ms"
artifact_grace = "1s"
sweep_max_age = "48h"

[[rules]]
pattern = 'pytest.*--browser'
engine = ""

[[rules]]
pattern = 'cypress\s+run'
engine = "chromium"

[event_log]
max_size_bytes = 1048576
max_backups = 3

[log]
dir = "/var/log/runwatch"
level = "debug"
stdout = true

[metrics]
enabled = true
listen = ":9290"

[history]
backend = "sqlite"
dsn = ":memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseDir != "/var/lib/runwatch" || cfg.Source != "poll" {
		t.Fatalf("base config mismatch: %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.ArtifactGrace != time.Second {
		t.Fatalf("intervals mismatch: %+v", cfg)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[1].Engine != "chromium" {
		t.Fatalf("rules mismatch: %+v", cfg.Rules)
	}
	if cfg.EventLog.MaxSizeBytes != 1048576 || cfg.EventLog.MaxBackups != 3 {
		t.Fatalf("event_log mismatch: %+v", cfg.EventLog)
	}
	if cfg.Metrics == nil || !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9290" {
		t.Fatalf("metrics mismatch: %+v", cfg.Metrics)
	}
	if cfg.History == nil || cfg.History.Backend != "sqlite" {
		t.Fatalf("history mismatch: %+v", cfg.History)
	}
}

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `base_dir = "/tmp/rw"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "auto" {
		t.Fatalf("source default = %q", cfg.Source)
	}
	if cfg.PollInterval != DefaultPollInterval || cfg.SweepMaxAge != DefaultSweepMaxAge {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.Rules) == 0 {
		t.Fatalf("default rules missing")
	}
	if cfg.EventLogPath() != filepath.Join("/tmp/rw", "logs", "events.jsonl") {
		t.Fatalf("event log path = %q", cfg.EventLogPath())
	}
}

func TestValidateRejectsBadSource(t *testing.T) {
	if _, err := Load(writeConfig(t, "base_dir = \"/tmp/rw\"\nsource = \"wmi\"")); err == nil {
		t.Fatalf("expected error for unknown source")
	}
}

func TestValidateRejectsBadRule(t *testing.T) {
	if _, err := Load(writeConfig(t, `
base_dir = "/tmp/rw"
[[rules]]
pattern = "("
`)); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
}

func TestArtifactGraceDefaultsToPollInterval(t *testing.T) {
	cfg, err := Load(writeConfig(t, "base_dir = \"/tmp/rw\"\npoll_interval = \"2s\""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ArtifactGrace != 2*time.Second {
		t.Fatalf("artifact grace = %v, want poll interval", cfg.ArtifactGrace)
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := Default()
	cfg.BaseDir = t.TempDir()
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, dir := range []string{cfg.LogsDir(), cfg.EndpointsDir(), cfg.ReportsDir()} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Fatalf("missing dir %s: %v", dir, err)
		}
	}
}
