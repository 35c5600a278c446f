package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Files returns the rotated set for an active log path in emission order:
// oldest backup first (highest index), active file last. Missing files are
// skipped.
func Files(path string) []string {
	var out []string
	// Indexes above the configured backup count only exist transiently, so
	// probing a generous range is enough.
	for i := 64; i >= 1; i-- {
		p := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	if _, err := os.Stat(path); err == nil {
		out = append(out, path)
	}
	return out
}

// ReadAll decodes every event across the rotated set in emission order.
// A torn or malformed line stops decoding of that file with an error, so
// callers notice corruption instead of silently skipping records.
func ReadAll(path string) ([]Event, error) {
	var events []Event
	for _, p := range Files(path) {
		f, err := os.Open(p) // #nosec G304 -- paths derive from our own log path
		if err != nil {
			return nil, err
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("corrupt record in %s: %w", p, err)
			}
			events = append(events, ev)
		}
		err = sc.Err()
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}
	return events, nil
}

// Tail returns the last n events across the rotated set.
func Tail(path string, n int) ([]Event, error) {
	events, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
