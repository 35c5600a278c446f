package run

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a monitored run.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusStarting:
		return 0
	case StatusRunning:
		return 1
	case StatusSucceeded, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Record describes one subject process lifetime. The correlator owns all
// records; once a terminal status is set the record is read-only.
type Record struct {
	RunID     string    `json:"run_id"`
	PID       int32     `json:"pid"`
	Cmdline   []string  `json:"cmdline"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	ExitCode  int       `json:"exit_code"`
	Engine    string    `json:"engine"`
	Status    Status    `json:"status"`
}

// Transition advances the record's status. Transitions are monotonic and a
// terminal status can be set exactly once.
func (r *Record) Transition(next Status) error {
	if next.rank() < 0 {
		return fmt.Errorf("unknown status %q", next)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s already terminal (%s)", r.RunID, r.Status)
	}
	if next.rank() <= r.Status.rank() {
		return fmt.Errorf("run %s cannot go %s -> %s", r.RunID, r.Status, next)
	}
	r.Status = next
	return nil
}

// Duration returns the run duration, or the time since start when the run
// has not ended yet.
func (r *Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// ID derives a run identifier from a pid and its start time. Pairing the
// pid with the start time makes the id a generation key, so a reused pid
// after a rapid exit never aliases an earlier run.
func ID(pid int32, start time.Time) string {
	return strconv.FormatInt(int64(pid), 10) + "-" + strconv.FormatInt(start.UnixMilli(), 10)
}
