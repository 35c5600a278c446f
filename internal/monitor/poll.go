package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// PollSource enumerates processes at a fixed interval and diffs
// successive snapshots. A pid whose create time changes between scans is
// reported as an exit of the old process followed by an exec of the new
// one, so pid reuse never merges two distinct processes. Exits observed
// this way carry exit code -1 because the code is not visible to a
// non-parent.
type PollSource struct {
	interval time.Duration
	known    map[int32]int64
}

func NewPollSource(interval time.Duration) *PollSource {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollSource{interval: interval, known: make(map[int32]int64)}
}

func (s *PollSource) Describe() string { return fmt.Sprintf("poll(%s)", s.interval) }

func (s *PollSource) Run(ctx context.Context, out chan<- Event) error {
	if err := s.scan(ctx, out); err != nil {
		return fmt.Errorf("initial process scan: %w", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// later scan failures are transient (proc churn); keep going
			_ = s.scan(ctx, out)
		}
	}
}

func (s *PollSource) scan(ctx context.Context, out chan<- Event) error {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	current := make(map[int32]int64, len(procs))
	for _, p := range procs {
		ct, err := p.CreateTime()
		if err != nil {
			continue
		}
		current[p.Pid] = ct
	}
	for pid, ct := range current {
		old, seen := s.known[pid]
		if seen && old == ct {
			continue
		}
		if seen {
			s.emit(ctx, out, Event{Kind: EventExit, PID: pid, CreateTime: old, ExitCode: -1, At: now})
		}
		s.emit(ctx, out, Event{Kind: EventExec, PID: pid, CreateTime: ct, At: now})
	}
	for pid, ct := range s.known {
		if _, ok := current[pid]; !ok {
			s.emit(ctx, out, Event{Kind: EventExit, PID: pid, CreateTime: ct, ExitCode: -1, At: now})
		}
	}
	s.known = current
	return nil
}

func (s *PollSource) emit(ctx context.Context, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
