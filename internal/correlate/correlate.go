// Package correlate joins process transitions with debug endpoint
// descriptors and failure reports, and emits exactly one started and one
// terminal event per run.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loykin/runwatch/internal/artifact"
	"github.com/loykin/runwatch/internal/endpoint"
	"github.com/loykin/runwatch/internal/eventlog"
	"github.com/loykin/runwatch/internal/history"
	"github.com/loykin/runwatch/internal/metrics"
	"github.com/loykin/runwatch/internal/monitor"
	"github.com/loykin/runwatch/internal/run"
)

const (
	// DescriptorAttempts and DescriptorBackoff bound the on-demand
	// endpoint lookup used by Endpoint().
	DescriptorAttempts = 5
	DescriptorBackoff  = 100 * time.Millisecond
	artifactStep       = 100 * time.Millisecond
	historySinkTimeout = 2 * time.Second
	reportExtJSON      = ".json"
	reportExtXML       = ".xml"
)

// Options configures a Correlator.
type Options struct {
	Endpoints   *endpoint.Store
	ReportsDir  string
	Writer      *eventlog.Writer
	Logger      *slog.Logger
	Grace       time.Duration // how long after exit a report may still appear
	SweepMaxAge time.Duration // stale descriptor garbage collection
	Sinks       []history.Sink
}

// Correlator owns all run records. It is driven by a single transition
// channel, so record state never needs locking beyond the snapshot
// accessor.
type Correlator struct {
	endpoints   *endpoint.Store
	reportsDir  string
	writer      *eventlog.Writer
	log         *slog.Logger
	grace       time.Duration
	sweepMaxAge time.Duration
	sinks       []history.Sink

	mu   sync.RWMutex
	runs map[string]*run.Record
}

func New(opts Options) *Correlator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = 500 * time.Millisecond
	}
	return &Correlator{
		endpoints:   opts.Endpoints,
		reportsDir:  opts.ReportsDir,
		writer:      opts.Writer,
		log:         log,
		grace:       grace,
		sweepMaxAge: opts.SweepMaxAge,
		sinks:       opts.Sinks,
		runs:        make(map[string]*run.Record),
	}
}

// Run consumes transitions until the channel closes or the context is
// cancelled.
func (c *Correlator) Run(ctx context.Context, transitions <-chan monitor.Transition) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr, ok := <-transitions:
			if !ok {
				return nil
			}
			switch tr.Kind {
			case monitor.TransitionStart:
				c.handleStart(tr)
			case monitor.TransitionExit:
				c.handleExit(ctx, tr)
			}
		}
	}
}

// Active returns a snapshot of the runs that have started but not
// reached a terminal state.
func (c *Correlator) Active() []run.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]run.Record, 0, len(c.runs))
	for _, r := range c.runs {
		out = append(out, *r)
	}
	return out
}

// Endpoint resolves the debug endpoint descriptor for a run, retrying
// briefly to tolerate a publisher writing concurrently.
func (c *Correlator) Endpoint(runID string) (endpoint.Info, bool) {
	if c.endpoints == nil {
		return endpoint.Info{}, false
	}
	return c.endpoints.ReadRetry(runID, DescriptorAttempts, DescriptorBackoff)
}

func (c *Correlator) handleStart(tr monitor.Transition) {
	rec := &run.Record{
		RunID:     tr.RunID,
		PID:       tr.PID,
		Cmdline:   tr.Cmdline,
		StartedAt: tr.StartAt,
		Engine:    tr.Engine,
		Status:    run.StatusStarting,
	}
	c.mu.Lock()
	c.runs[tr.RunID] = rec
	c.mu.Unlock()

	// One descriptor attempt at start; the endpoint may legitimately not
	// exist yet and the started event simply omits it.
	var ep *endpoint.Info
	if c.endpoints != nil {
		if info, err := c.endpoints.Read(tr.RunID); err == nil {
			ep = &info
		} else {
			metrics.IncDescriptorUnavailable()
		}
	}

	_ = rec.Transition(run.StatusRunning)
	c.append(eventlog.Started(*rec, ep))
	metrics.IncStarted(tr.Engine)
	c.log.Info("run started", "run_id", tr.RunID, "pid", tr.PID,
		"engine", tr.Engine, "endpoint", ep != nil)
}

func (c *Correlator) handleExit(ctx context.Context, tr monitor.Transition) {
	c.mu.Lock()
	rec, ok := c.runs[tr.RunID]
	if !ok {
		// Start transition was lost (queue overflow); reconstruct enough
		// of the record that the terminal event is still emitted.
		rec = &run.Record{
			RunID:     tr.RunID,
			PID:       tr.PID,
			Cmdline:   tr.Cmdline,
			StartedAt: tr.StartAt,
			Engine:    tr.Engine,
			Status:    run.StatusRunning,
		}
	}
	delete(c.runs, tr.RunID)
	c.mu.Unlock()

	rec.EndedAt = tr.At
	rec.ExitCode = tr.ExitCode

	failed := tr.ExitCode != 0
	sum := c.collectArtifact(tr.RunID, failed)

	var ev eventlog.Event
	if failed {
		_ = rec.Transition(run.StatusFailed)
		ev = eventlog.Failed(*rec, sum, eventlog.ErrorDetail{
			Title:   "Test failed",
			Message: fmt.Sprintf("process exited with code %d", tr.ExitCode),
		})
	} else {
		_ = rec.Transition(run.StatusSucceeded)
		ev = eventlog.Succeeded(*rec, sum)
	}
	c.append(ev)
	metrics.IncTerminal(rec.Engine, string(rec.Status))
	c.log.Info("run finished", "run_id", tr.RunID, "pid", tr.PID,
		"status", rec.Status, "exit_code", tr.ExitCode,
		"duration_ms", rec.Duration().Milliseconds())

	c.dispatchHistory(ctx, rec)
	c.cleanup(tr.RunID)
}

// collectArtifact looks for reports/<runID>.json or .xml. Failed runs
// get a grace window because the runner may still be flushing the report
// when the process exit is observed.
func (c *Correlator) collectArtifact(runID string, failed bool) *artifact.Summary {
	if c.reportsDir == "" {
		return nil
	}
	paths := []string{
		filepath.Join(c.reportsDir, runID+reportExtJSON),
		filepath.Join(c.reportsDir, runID+reportExtXML),
	}
	deadline := time.Now().Add(c.grace)
	for {
		for _, p := range paths {
			if sum, ok := artifact.Parse(p); ok {
				return &sum
			}
		}
		if !failed || time.Now().After(deadline) {
			break
		}
		time.Sleep(artifactStep)
	}
	if failed {
		metrics.IncArtifactUnavailable()
		c.log.Debug("no failure report found", "run_id", runID, "grace", c.grace)
	}
	return nil
}

func (c *Correlator) append(ev eventlog.Event) {
	if err := c.writer.Append(ev); err != nil {
		metrics.IncEventDropped()
		c.log.Error("event log append failed", "run_id", ev.RunID,
			"event", string(ev.Event), "error", err)
	}
}

func (c *Correlator) dispatchHistory(ctx context.Context, rec *run.Record) {
	if len(c.sinks) == 0 {
		return
	}
	hrec := history.Record{
		RunID:     rec.RunID,
		Engine:    rec.Engine,
		PID:       rec.PID,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		ExitCode:  rec.ExitCode,
		Status:    string(rec.Status),
	}
	sctx, cancel := context.WithTimeout(ctx, historySinkTimeout)
	defer cancel()
	for _, sink := range c.sinks {
		if err := sink.Send(sctx, hrec); err != nil {
			c.log.Warn("history sink rejected record", "run_id", rec.RunID, "error", err)
		}
	}
}

// cleanup drops the finished run's descriptor and garbage-collects
// descriptors and reports old enough to belong to runs that will never
// finish. Fresh reports are kept so operators can still inspect them.
func (c *Correlator) cleanup(runID string) {
	if c.endpoints != nil {
		if err := c.endpoints.Remove(runID); err != nil {
			c.log.Debug("descriptor removal failed", "run_id", runID, "error", err)
		}
		if c.sweepMaxAge > 0 {
			if n := c.endpoints.Sweep(c.sweepMaxAge); n > 0 {
				c.log.Info("swept stale endpoint descriptors", "removed", n)
			}
		}
	}
	if c.reportsDir != "" && c.sweepMaxAge > 0 {
		if n := sweepDir(c.reportsDir, c.sweepMaxAge); n > 0 {
			c.log.Info("swept stale reports", "removed", n)
		}
	}
}

// SweepReports removes report files older than maxAge.
func SweepReports(dir string, maxAge time.Duration) int {
	return sweepDir(dir, maxAge)
}

// sweepDir removes regular files older than maxAge. Best effort.
func sweepDir(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
