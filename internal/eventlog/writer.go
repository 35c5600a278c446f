package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const (
	DefaultMaxSize    = 10 * 1024 * 1024
	DefaultMaxBackups = 5
	writeAttempts     = 3
)

// Writer appends events to a single active file and rotates it by size.
// Backups are numbered: <path>.1 is the most recent, the index past
// MaxBackups is evicted. All writers serialize behind one lock, so the
// rotation check and the record write form one atomic unit and a tailing
// reader never sees a partial line.
type Writer struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	backups int
	f       *os.File
	size    int64
	dropped atomic.Uint64
}

// NewWriter opens (or creates) the active file at path.
func NewWriter(path string, maxSize int64, maxBackups int) (*Writer, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &Writer{path: path, maxSize: maxSize, backups: maxBackups}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat event log: %w", err)
	}
	w.f = f
	w.size = fi.Size()
	return nil
}

// Append encodes the event and writes it as one line. The write is retried
// a bounded number of times; a record that still cannot be written is
// dropped and counted, never blocking the caller further.
func (w *Writer) Append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		w.dropped.Add(1)
		return fmt.Errorf("encode event %s/%s: %w", ev.Event, ev.RunID, err)
	}
	line := append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	var rotateErr error
	if w.size > 0 && w.size+int64(len(line)) > w.maxSize {
		// Rotation failure must not lose the record: the line is still
		// appended to the (oversized) active file below.
		rotateErr = w.rotate()
	}

	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		n, err := w.f.Write(line)
		if err == nil {
			w.size += int64(len(line))
			if rotateErr != nil {
				return fmt.Errorf("rotate event log: %w", rotateErr)
			}
			return nil
		}
		lastErr = err
		if n > 0 {
			// Partial line on disk: truncate back so the file never ends
			// with a torn record.
			_ = w.f.Truncate(w.size)
			if _, serr := w.f.Seek(w.size, 0); serr != nil {
				break
			}
		}
	}
	w.dropped.Add(1)
	return fmt.Errorf("write event %s/%s: %w", ev.Event, ev.RunID, lastErr)
}

// rotate shifts <path>.i to <path>.i+1 (the rename onto <path>.<backups>
// evicts the oldest), moves the active file to <path>.1 and opens a fresh
// one. Called with the lock held. On any failure the active file is
// reopened so appends keep working.
func (w *Writer) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	var firstErr error
	for i := w.backups - 1; i >= 1; i-- {
		old := fmt.Sprintf("%s.%d", w.path, i)
		if _, err := os.Stat(old); err != nil {
			continue
		}
		if err := os.Rename(old, fmt.Sprintf("%s.%d", w.path, i+1)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = os.Rename(w.path, w.path+".1")
	}
	if err := w.open(); err != nil {
		return err
	}
	return firstErr
}

// Dropped reports how many records were discarded after exhausting the
// write retry budget.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Sync flushes the active file to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close flushes and closes the active file. Append must not be called
// afterwards.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	_ = w.f.Sync()
	err := w.f.Close()
	w.f = nil
	return err
}
