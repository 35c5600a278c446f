// Package history persists finished runs to external stores for later
// querying. Sinks are best effort; a failing sink never blocks event
// emission.
package history

import (
	"context"
	"time"
)

// Record is one finished run as written to a history store.
type Record struct {
	RunID     string
	Engine    string
	PID       int32
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  int
	Status    string
}

// Sink receives finished runs.
type Sink interface {
	Send(ctx context.Context, rec Record) error
	Close() error
}
