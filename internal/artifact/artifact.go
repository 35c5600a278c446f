// Package artifact extracts failure data from test-framework report files.
// Parsing is strictly best-effort: any malformed or unknown input is
// reported as unavailable, never as an error.
package artifact

import (
	"os"
	"path/filepath"
	"strings"
)

// Summary is the failure digest embedded in a terminal event.
type Summary struct {
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Stack       string   `json:"stack"`
	Traces      []string `json:"traces"`
	Screenshots []string `json:"screenshots"`
}

// Parse reads a report file and returns its failure summary. The second
// return value is false when the file is missing, truncated, malformed,
// has an unknown shape, or contains no failing test.
func Parse(path string) (Summary, bool) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Summary{}, false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseSuiteTree(data)
	case ".xml":
		return parseXUnit(data)
	default:
		return Summary{}, false
	}
}
