package artifact

import (
	"encoding/json"
	"strings"
)

// Playwright-style JSON report: a tree of suites containing specs, which
// contain tests, which carry one result per attempt.

type treeReport struct {
	Suites []treeSuite `json:"suites"`
}

type treeSuite struct {
	Title  string      `json:"title"`
	Suites []treeSuite `json:"suites"`
	Specs  []treeSpec  `json:"specs"`
}

type treeSpec struct {
	Title string     `json:"title"`
	Tests []treeTest `json:"tests"`
}

type treeTest struct {
	Title   string       `json:"title"`
	Results []treeResult `json:"results"`
}

type treeResult struct {
	Status      string           `json:"status"`
	Error       treeError        `json:"error"`
	Attachments []treeAttachment `json:"attachments"`
}

type treeError struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

type treeAttachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// parseSuiteTree walks the report depth-first and collects failing leaf
// tests. The first failure supplies title, message and stack; attachments
// from every failing result feed the trace and screenshot lists.
func parseSuiteTree(data []byte) (Summary, bool) {
	var report treeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return Summary{}, false
	}
	var sum Summary
	found := false
	for _, suite := range report.Suites {
		walkSuite(suite, nil, &sum, &found)
	}
	return sum, found
}

func walkSuite(s treeSuite, ancestors []string, sum *Summary, found *bool) {
	if s.Title != "" {
		ancestors = append(ancestors, s.Title)
	}
	for _, spec := range s.Specs {
		for _, test := range spec.Tests {
			for _, res := range test.Results {
				if res.Status != "failed" && res.Status != "timedOut" {
					continue
				}
				if !*found {
					*found = true
					sum.Title = failureTitle(ancestors, spec.Title, test.Title)
					sum.Message = res.Error.Message
					sum.Stack = res.Error.Stack
				}
				collectAttachments(res.Attachments, sum)
			}
		}
	}
	for _, child := range s.Suites {
		walkSuite(child, ancestors, sum, found)
	}
}

func failureTitle(ancestors []string, spec, test string) string {
	parts := append([]string{}, ancestors...)
	if spec != "" {
		parts = append(parts, spec)
	}
	if test != "" && test != spec {
		parts = append(parts, test)
	}
	return strings.Join(parts, " > ")
}

func collectAttachments(atts []treeAttachment, sum *Summary) {
	for _, a := range atts {
		if a.Path == "" {
			continue
		}
		name := strings.ToLower(a.Name)
		switch {
		case strings.Contains(name, "trace"):
			sum.Traces = append(sum.Traces, a.Path)
		case strings.Contains(name, "screenshot"):
			sum.Screenshots = append(sum.Screenshots, a.Path)
		}
	}
}
