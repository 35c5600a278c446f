// Package monitor maintains a live view of OS processes and detects
// subject start/exit transitions exactly once per process lifetime.
package monitor

import (
	"context"
	"log/slog"
	"time"
)

// EventKind is a low-level process observation kind.
type EventKind int

const (
	EventExec EventKind = iota // process appeared (or exec'd)
	EventExit                  // process disappeared or exited
)

// Event is a raw observation from a Source. CreateTime is the process
// start time in unix milliseconds when the source knows it, zero
// otherwise. ExitCode is -1 when the source cannot observe it.
type Event struct {
	Kind       EventKind
	PID        int32
	CreateTime int64
	ExitCode   int
	At         time.Time
}

// Source is a strategy producing process observations. Run blocks until
// the context is cancelled or the source fails; implementations must be
// usable from a single goroutine.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
	Describe() string
}

// SelectSource picks the observation strategy. "netlink" and "auto" try
// the kernel proc connector first; any setup failure (permissions,
// platform) is logged once and polling is used instead. The second return
// value is the fallback used when the primary fails mid-run.
func SelectSource(kind string, interval time.Duration, log *slog.Logger) (Source, Source) {
	poll := NewPollSource(interval)
	switch kind {
	case "poll":
		return poll, nil
	case "netlink", "auto", "":
		nl, err := newNetlinkSource()
		if err != nil {
			if kind == "netlink" {
				log.Warn("netlink process events unavailable, falling back to polling", "error", err)
			} else {
				log.Info("using polling process enumeration", "reason", err.Error())
			}
			return poll, nil
		}
		log.Info("using netlink process events")
		return nl, poll
	default:
		return poll, nil
	}
}
