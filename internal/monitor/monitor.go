package monitor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/runwatch/internal/classify"
	"github.com/loykin/runwatch/internal/metrics"
	"github.com/loykin/runwatch/internal/run"
)

// RunIDEnv is the environment variable a subject may set to override
// the derived run identifier.
const RunIDEnv = "RUNWATCH_RUN_ID"

// TransitionKind is a subject lifecycle edge.
type TransitionKind int

const (
	TransitionStart TransitionKind = iota
	TransitionExit
)

// Transition is a classified subject event delivered to the correlator.
// Exit transitions reuse the RunID, PID, Cmdline and Engine captured at
// start so consumers never need to inspect a dead process.
type Transition struct {
	Kind     TransitionKind
	RunID    string
	PID      int32
	Cmdline  []string
	Engine   string
	StartAt  time.Time
	At       time.Time
	ExitCode int
}

type trackedRun struct {
	runID   string
	startMs int64
	engine  string
	cmdline []string
	startAt time.Time
}

// Options configures a Monitor. Source is required; Fallback, when set,
// takes over if Source fails mid-run.
type Options struct {
	Source    Source
	Fallback  Source
	Matcher   *classify.Matcher
	Logger    *slog.Logger
	QueueSize int
}

// Monitor consumes raw process events, classifies subjects, and emits
// exactly one start and one exit transition per subject process
// lifetime. The output channel is bounded; when the consumer lags,
// transitions are dropped and counted rather than blocking observation.
type Monitor struct {
	src      Source
	fallback Source
	matcher  *classify.Matcher
	log      *slog.Logger
	tracked  map[int32]trackedRun
	out      chan Transition

	// overridable in tests; defaults to live process inspection
	inspect func(Event) (trackedRun, bool)
}

func New(opts Options) *Monitor {
	size := opts.QueueSize
	if size <= 0 {
		size = 256
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	matcher := opts.Matcher
	if matcher == nil {
		matcher = classify.Default()
	}
	m := &Monitor{
		src:      opts.Source,
		fallback: opts.Fallback,
		matcher:  matcher,
		log:      log,
		tracked:  make(map[int32]trackedRun),
		out:      make(chan Transition, size),
	}
	m.inspect = m.inspectProcess
	return m
}

// Transitions returns the output channel. It is closed when Run returns.
func (m *Monitor) Transitions() <-chan Transition { return m.out }

// Run blocks until the context is cancelled or all sources have failed.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.out)
	src := m.src
	for {
		m.log.Info("process observation started", "source", src.Describe())
		err := m.consume(ctx, src)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		if m.fallback == nil || src == m.fallback {
			return err
		}
		m.log.Warn("process source failed, switching to fallback",
			"source", src.Describe(), "fallback", m.fallback.Describe(), "error", err)
		src = m.fallback
	}
}

func (m *Monitor) consume(ctx context.Context, src Source) error {
	events := make(chan Event, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, events) }()
	for {
		select {
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case ev := <-events:
			m.handle(ev)
		}
	}
}

func (m *Monitor) handle(ev Event) {
	switch ev.Kind {
	case EventExec:
		m.handleExec(ev)
	case EventExit:
		m.handleExit(ev)
	}
}

func (m *Monitor) handleExec(ev Event) {
	if t, ok := m.tracked[ev.PID]; ok {
		if ev.CreateTime == 0 || ev.CreateTime == t.startMs {
			return
		}
		// pid reused before the exit was seen; close the old generation
		m.emitExit(t, ev.PID, -1, ev.At)
		delete(m.tracked, ev.PID)
	}
	t, ok := m.inspect(ev)
	if !ok {
		return
	}
	m.tracked[ev.PID] = t
	m.send(Transition{
		Kind:    TransitionStart,
		RunID:   t.runID,
		PID:     ev.PID,
		Cmdline: t.cmdline,
		Engine:  t.engine,
		StartAt: t.startAt,
		At:      ev.At,
	})
	metrics.SetActiveRuns(len(m.tracked))
}

func (m *Monitor) handleExit(ev Event) {
	t, ok := m.tracked[ev.PID]
	if !ok {
		return
	}
	if ev.CreateTime != 0 && t.startMs != 0 && ev.CreateTime != t.startMs {
		return
	}
	delete(m.tracked, ev.PID)
	m.emitExit(t, ev.PID, ev.ExitCode, ev.At)
	metrics.SetActiveRuns(len(m.tracked))
}

func (m *Monitor) emitExit(t trackedRun, pid int32, code int, at time.Time) {
	m.send(Transition{
		Kind:     TransitionExit,
		RunID:    t.runID,
		PID:      pid,
		Cmdline:  t.cmdline,
		Engine:   t.engine,
		StartAt:  t.startAt,
		At:       at,
		ExitCode: code,
	})
}

// inspectProcess reads the command line of a freshly observed process
// and decides whether it is a subject. Processes that vanish before they
// can be inspected are skipped silently.
func (m *Monitor) inspectProcess(ev Event) (trackedRun, bool) {
	p, err := process.NewProcess(ev.PID)
	if err != nil {
		return trackedRun{}, false
	}
	cmdline, err := p.CmdlineSlice()
	if err != nil || len(cmdline) == 0 {
		return trackedRun{}, false
	}
	engine, ok := m.matcher.Match(cmdline)
	if !ok {
		return trackedRun{}, false
	}
	startMs := ev.CreateTime
	if startMs == 0 {
		if ct, err := p.CreateTime(); err == nil {
			startMs = ct
		}
	}
	startAt := ev.At
	if startMs != 0 {
		startAt = time.UnixMilli(startMs)
	}
	runID := runIDFromEnv(p)
	if runID == "" {
		runID = run.ID(ev.PID, startAt)
	}
	return trackedRun{
		runID:   runID,
		startMs: startMs,
		engine:  engine,
		cmdline: cmdline,
		startAt: startAt,
	}, true
}

func runIDFromEnv(p *process.Process) string {
	env, err := p.Environ()
	if err != nil {
		return ""
	}
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, RunIDEnv+"="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (m *Monitor) send(tr Transition) {
	select {
	case m.out <- tr:
	default:
		metrics.IncTransitionDropped()
		m.log.Warn("transition queue full, dropping event",
			"run_id", tr.RunID, "pid", tr.PID, "kind", int(tr.Kind))
	}
}
