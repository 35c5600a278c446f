// Package logger configures the watchdog's own diagnostic logging. This is
// separate from the event log: diagnostics go to stdout and/or a rotating
// file, lifecycle events go through internal/eventlog.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes diagnostic log destinations. If Path is empty and Dir
// is set, the file becomes Dir/<name>.log. Rotation parameters follow
// lumberjack semantics.
type Config struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Path       string `toml:"path" mapstructure:"path"`
	Level      string `toml:"level" mapstructure:"level"`
	Stdout     bool   `toml:"stdout" mapstructure:"stdout"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Writer returns a rotating file writer for the given logger name, or nil
// when no file destination is configured.
func (c Config) Writer(name string) io.WriteCloser {
	path := c.Path
	if path == "" && c.Dir != "" {
		path = filepath.Join(c.Dir, name+".log")
	}
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// Setup builds the slog logger for the watchdog process. The returned
// closer flushes and closes the file destination, if any.
func Setup(c Config) (*slog.Logger, func()) {
	level := parseLevel(c.Level)
	var handlers []slog.Handler
	var closer func()

	if c.Stdout {
		handlers = append(handlers, NewColorTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	if w := c.Writer("runwatch"); w != nil {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
		closer = func() { _ = w.Close() }
	}
	if closer == nil {
		closer = func() {}
	}

	switch len(handlers) {
	case 0:
		// Nothing configured: keep diagnostics on stderr rather than
		// discarding them.
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), closer
	case 1:
		return slog.New(handlers[0]), closer
	default:
		return slog.New(multiHandler(handlers)), closer
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
