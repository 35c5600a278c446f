// Package runwatch watches externally launched test-automation runs: it
// detects subject processes, correlates them with browser debug endpoint
// descriptors and failure reports, and appends lifecycle events to a
// durable rotated JSONL log.
package runwatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	cfg "github.com/loykin/runwatch/internal/config"
	"github.com/loykin/runwatch/internal/correlate"
	"github.com/loykin/runwatch/internal/endpoint"
	"github.com/loykin/runwatch/internal/eventlog"
	"github.com/loykin/runwatch/internal/history"
	"github.com/loykin/runwatch/internal/history/factory"
	"github.com/loykin/runwatch/internal/history/postgres"
	"github.com/loykin/runwatch/internal/history/sqlite"
	"github.com/loykin/runwatch/internal/logger"
	"github.com/loykin/runwatch/internal/metrics"
	"github.com/loykin/runwatch/internal/monitor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type EndpointInfo = endpoint.Info

type Event = eventlog.Event

type HistorySink = history.Sink

// LoadConfig reads a TOML config file, applying defaults and validation.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config { return cfg.Default() }

// Watchdog is the assembled monitoring pipeline.
type Watchdog struct {
	cfg    *cfg.Config
	log    *slog.Logger
	closer func()
	writer *eventlog.Writer
	mon    *monitor.Monitor
	corr   *correlate.Correlator
	sinks  []history.Sink
}

// New assembles a watchdog from a validated config.
func New(c *cfg.Config) (*Watchdog, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.EnsureDirs(); err != nil {
		return nil, err
	}

	logCfg := logger.Config{Dir: c.LogsDir(), Stdout: true}
	if c.Log != nil {
		logCfg = *c.Log
		if logCfg.Dir == "" && logCfg.Path == "" {
			logCfg.Dir = c.LogsDir()
		}
	}
	log, closer := logger.Setup(logCfg)

	writer, err := eventlog.NewWriter(c.EventLogPath(), c.EventLog.MaxSizeBytes, c.EventLog.MaxBackups)
	if err != nil {
		closer()
		return nil, err
	}

	var sinks []history.Sink
	if c.History != nil && c.History.DSN != "" {
		sink, err := newHistorySink(c.History)
		if err != nil {
			_ = writer.Close()
			closer()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	primary, fallback := monitor.SelectSource(c.Source, c.PollInterval, log)
	mon := monitor.New(monitor.Options{
		Source:   primary,
		Fallback: fallback,
		Matcher:  c.Matcher(),
		Logger:   log,
	})

	store := endpoint.NewStore(c.EndpointsDir())
	corr := correlate.New(correlate.Options{
		Endpoints:   store,
		ReportsDir:  c.ReportsDir(),
		Writer:      writer,
		Logger:      log,
		Grace:       c.ArtifactGrace,
		SweepMaxAge: c.SweepMaxAge,
		Sinks:       sinks,
	})

	return &Watchdog{
		cfg:    c,
		log:    log,
		closer: closer,
		writer: writer,
		mon:    mon,
		corr:   corr,
		sinks:  sinks,
	}, nil
}

func newHistorySink(hc *cfg.HistoryConfig) (history.Sink, error) {
	switch hc.Backend {
	case "", "auto":
		return factory.NewSinkFromDSN(hc.DSN)
	case "sqlite":
		return sqlite.New(hc.DSN)
	case "postgres":
		return postgres.New(hc.DSN)
	default:
		return nil, fmt.Errorf("unknown history backend %q", hc.Backend)
	}
}

// Logger exposes the watchdog's diagnostic logger.
func (w *Watchdog) Logger() *slog.Logger { return w.log }

// Run blocks until the context is cancelled, then drains and closes the
// event log.
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info("watchdog starting",
		"base_dir", w.cfg.BaseDir,
		"event_log", w.cfg.EventLogPath(),
		"poll_interval", w.cfg.PollInterval,
		"artifact_grace", w.cfg.ArtifactGrace)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.mon.Run(gctx) })
	g.Go(func() error { return w.corr.Run(gctx, w.mon.Transitions()) })
	err := g.Wait()

	w.close()
	w.log.Info("watchdog stopped")
	return err
}

func (w *Watchdog) close() {
	for _, s := range w.sinks {
		_ = s.Close()
	}
	if werr := w.writer.Close(); werr != nil {
		w.log.Warn("event log close failed", "error", werr)
	}
	w.closer()
}

// Endpoint resolves the debug endpoint descriptor for a run id with a
// short bounded retry.
func (w *Watchdog) Endpoint(runID string) (EndpointInfo, bool) {
	return w.corr.Endpoint(runID)
}

// TailEvents returns the newest n events across the active log and its
// rotated backups.
func TailEvents(path string, n int) ([]Event, error) { return eventlog.Tail(path, n) }

// Publisher discovers a browser debug endpoint and writes its
// descriptor. Discovery polls the DevToolsActivePort file under the
// browser's user data directory and the /json/version HTTP endpoint
// with a bounded budget.
type Publisher = endpoint.Publisher

// NewPublisher returns a publisher writing descriptors under dir.
func NewPublisher(dir string) *Publisher {
	return &Publisher{Store: endpoint.NewStore(dir)}
}

// FreeDebugPort asks the kernel for an unused local TCP port for a
// browser debug listener.
func FreeDebugPort() (int, error) { return endpoint.FreePort() }

// SweepEndpoints removes descriptors older than maxAge from dir.
func SweepEndpoints(dir string, maxAge time.Duration) int {
	return endpoint.NewStore(dir).Sweep(maxAge)
}

// SweepReports removes report files older than maxAge from dir.
func SweepReports(dir string, maxAge time.Duration) int {
	return correlate.SweepReports(dir, maxAge)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsServer returns an HTTP server exposing /metrics on addr using
// the default registry. The caller owns its lifecycle.
func MetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
