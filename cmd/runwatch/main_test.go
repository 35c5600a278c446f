package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/runwatch/internal/endpoint"
)

func TestBuildRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	want := map[string]bool{"serve": false, "publish": false, "tail": false, "sweep": false, "endpoint": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestPublishRequiresTarget(t *testing.T) {
	c := command{}
	if err := c.Publish(PublishFlags{RunID: "1-1"}); err == nil {
		t.Fatal("expected error without port or user-data-dir")
	}
	if err := c.Publish(PublishFlags{Port: 9222}); err == nil {
		t.Fatal("expected error without run id")
	}
}

func TestEndpointCommandReadsDescriptor(t *testing.T) {
	base := t.TempDir()
	store := endpoint.NewStore(filepath.Join(base, "endpoints"))
	info := endpoint.Info{
		RunID:       "5-5",
		Port:        9222,
		EndpointURL: "ws://127.0.0.1:9222/devtools/browser/x",
		Timestamp:   time.Now().UTC(),
	}
	if err := store.Write(info); err != nil {
		t.Fatal(err)
	}

	c := command{}
	if err := c.Endpoint(EndpointFlags{BaseDir: base, RunID: "5-5"}); err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if err := c.Endpoint(EndpointFlags{BaseDir: base, RunID: "6-6"}); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestSweepCommandRemovesStale(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "endpoints")
	store := endpoint.NewStore(dir)
	if err := store.Write(endpoint.Info{RunID: "old-1", Timestamp: time.Now()}); err != nil {
		t.Fatal(err)
	}
	stale := store.Path("old-1")
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatal(err)
	}

	c := command{}
	if err := c.Sweep(SweepFlags{BaseDir: base, MaxAge: 24 * time.Hour}); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale descriptor survived sweep")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig("", "/tmp/rw-test", "poll")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseDir != "/tmp/rw-test" || cfg.Source != "poll" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), "", ""); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestPrintJSONShape(t *testing.T) {
	info := endpoint.Info{RunID: "1-2", Port: 3}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"runId", "port", "endpointUrl", "discoverySourcePath", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("descriptor JSON missing %q", key)
		}
	}
}
