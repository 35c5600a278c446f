package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterPathResolution(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	w := c.Writer("runwatch")
	if w == nil {
		t.Fatalf("expected writer for Dir config")
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	if _, err := os.Stat(filepath.Join(dir, "runwatch.log")); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestWriterNilWhenUnconfigured(t *testing.T) {
	if w := (Config{}).Writer("runwatch"); w != nil {
		t.Fatalf("expected nil writer")
	}
}

func TestSetupFileHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")
	log, closeFn := Setup(Config{Path: path, Level: "debug"})
	log.Debug("probe", slog.String("k", "v"))
	closeFn()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read diag log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"probe"`) {
		t.Fatalf("diag log missing record: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
