// Package eventlog is the durable sink for run lifecycle events: one JSON
// record per line, single active file, size-based rotation to numbered
// backups.
package eventlog

import (
	"time"

	"github.com/loykin/runwatch/internal/artifact"
	"github.com/loykin/runwatch/internal/endpoint"
	"github.com/loykin/runwatch/internal/run"
)

// Type discriminates the event variants.
type Type string

const (
	TypeStarted   Type = "started"
	TypeSucceeded Type = "succeeded"
	TypeFailed    Type = "failed"
)

// ErrorDetail summarizes the first failure of a failed run.
type ErrorDetail struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// Artifacts lists the failure artifacts collected for a run. Slices are
// kept non-nil so failed events always carry explicit (possibly empty)
// lists.
type Artifacts struct {
	Traces      []string `json:"traces"`
	Screenshots []string `json:"screenshots"`
}

// Event is one immutable lifecycle record. Fields beyond the shared head
// are populated per variant.
type Event struct {
	Event Type      `json:"event"`
	RunID string    `json:"runId"`
	TS    time.Time `json:"ts"`
	PID   int32     `json:"pid"`

	// started
	Command  []string       `json:"command,omitempty"`
	Engine   string         `json:"engine,omitempty"`
	Endpoint *endpoint.Info `json:"endpoint,omitempty"`

	// succeeded / failed
	ExitCode   *int         `json:"exitCode,omitempty"`
	DurationMs *int64       `json:"durationMs,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	Artifacts  *Artifacts   `json:"artifacts,omitempty"`
}

// Started builds the initial event for a run. ep may be nil when no
// descriptor was readable at emission time.
func Started(rec run.Record, ep *endpoint.Info) Event {
	return Event{
		Event:    TypeStarted,
		RunID:    rec.RunID,
		TS:       time.Now().UTC(),
		PID:      rec.PID,
		Command:  rec.Cmdline,
		Engine:   rec.Engine,
		Endpoint: ep,
	}
}

// Succeeded builds the terminal event for a clean exit. sum may be nil.
func Succeeded(rec run.Record, sum *artifact.Summary) Event {
	ev := terminal(TypeSucceeded, rec)
	if sum != nil {
		ev.Artifacts = artifacts(sum)
	}
	return ev
}

// Failed builds the terminal event for a failed exit. When no summary is
// available the error falls back to the exit code and the artifact lists
// stay empty, never absent.
func Failed(rec run.Record, sum *artifact.Summary, fallback ErrorDetail) Event {
	ev := terminal(TypeFailed, rec)
	if sum != nil {
		ev.Error = &ErrorDetail{Title: sum.Title, Message: sum.Message, Stack: sum.Stack}
		ev.Artifacts = artifacts(sum)
	} else {
		ev.Error = &fallback
		ev.Artifacts = &Artifacts{Traces: []string{}, Screenshots: []string{}}
	}
	return ev
}

func terminal(t Type, rec run.Record) Event {
	code := rec.ExitCode
	ms := rec.Duration().Milliseconds()
	return Event{
		Event:      t,
		RunID:      rec.RunID,
		TS:         time.Now().UTC(),
		PID:        rec.PID,
		ExitCode:   &code,
		DurationMs: &ms,
	}
}

func artifacts(sum *artifact.Summary) *Artifacts {
	a := &Artifacts{Traces: sum.Traces, Screenshots: sum.Screenshots}
	if a.Traces == nil {
		a.Traces = []string{}
	}
	if a.Screenshots == nil {
		a.Screenshots = []string{}
	}
	return a
}
