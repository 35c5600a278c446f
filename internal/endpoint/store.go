// Package endpoint publishes and reads browser debug endpoint descriptors.
// The descriptor directory is a filesystem key-value store keyed by run id:
// writers and readers are independent processes that never share locks, so
// readers tolerate mid-write files with bounded retries.
package endpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Info describes a discovered debug endpoint for one run. Written once,
// never mutated.
type Info struct {
	RunID               string    `json:"runId"`
	Port                int       `json:"port"`
	EndpointURL         string    `json:"endpointUrl"`
	DiscoverySourcePath string    `json:"discoverySourcePath"`
	Timestamp           time.Time `json:"timestamp"`
}

// Store reads and writes descriptor files under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

// Dir returns the descriptor directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the descriptor path for a run id.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// Write persists the descriptor. A temp file plus rename keeps the common
// case atomic, but readers do not rely on that guarantee.
func (s *Store) Write(info Info) error {
	if info.RunID == "" {
		return fmt.Errorf("endpoint descriptor requires a run id")
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create endpoint dir: %w", err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode endpoint descriptor: %w", err)
	}
	tmp := s.Path(info.RunID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write endpoint descriptor: %w", err)
	}
	if err := os.Rename(tmp, s.Path(info.RunID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("publish endpoint descriptor: %w", err)
	}
	return nil
}

// Read loads the descriptor for a run id in a single attempt.
func (s *Store) Read(runID string) (Info, error) {
	data, err := os.ReadFile(s.Path(runID))
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("decode endpoint descriptor %s: %w", runID, err)
	}
	return info, nil
}

// ReadRetry loads the descriptor with a bounded retry budget, tolerating a
// file that is still being written. A descriptor that never appears is a
// normal outcome, reported as (zero, false).
func (s *Store) ReadRetry(runID string, attempts int, backoff time.Duration) (Info, bool) {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(backoff)
		}
		info, err := s.Read(runID)
		if err == nil && info.RunID == runID {
			return info, true
		}
		if os.IsNotExist(err) && i == attempts-1 {
			return Info{}, false
		}
	}
	return Info{}, false
}

// Remove deletes the descriptor for a run id. A missing descriptor is
// not an error.
func (s *Store) Remove(runID string) error {
	err := os.Remove(s.Path(runID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep deletes descriptors older than maxAge and returns how many were
// removed. Best effort; errors on individual files are ignored.
func (s *Store) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
