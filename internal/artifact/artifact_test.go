package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func writeReport(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

const suiteTreeReport = `{
  "suites": [
    {
      "title": "Login",
      "specs": [
        {
          "title": "should submit",
          "tests": [
            {
              "title": "should submit",
              "results": [
                {
                  "status": "failed",
                  "error": {"message": "locator timed out", "stack": "Error: locator timed out\n  at login.spec.ts:12"},
                  "attachments": [
                    {"name": "trace", "path": "/tmp/trace.zip"},
                    {"name": "screenshot", "path": "/tmp/shot.png"},
                    {"name": "video", "path": "/tmp/run.webm"}
                  ]
                }
              ]
            }
          ]
        }
      ]
    }
  ]
}`

func TestParseSuiteTree(t *testing.T) {
	path := writeReport(t, "run.json", suiteTreeReport)
	sum, ok := Parse(path)
	if !ok {
		t.Fatalf("expected summary")
	}
	if sum.Title != "Login > should submit" {
		t.Fatalf("title = %q", sum.Title)
	}
	if sum.Message != "locator timed out" {
		t.Fatalf("message = %q", sum.Message)
	}
	if len(sum.Traces) != 1 || sum.Traces[0] != "/tmp/trace.zip" {
		t.Fatalf("traces = %v", sum.Traces)
	}
	if len(sum.Screenshots) != 1 || sum.Screenshots[0] != "/tmp/shot.png" {
		t.Fatalf("screenshots = %v", sum.Screenshots)
	}
}

func TestParseSuiteTreeNestedSuites(t *testing.T) {
	path := writeReport(t, "run.json", `{
	  "suites": [{
	    "title": "checkout.spec.ts",
	    "suites": [{
	      "title": "Checkout",
	      "specs": [{
	        "title": "pays with card",
	        "tests": [{"title": "pays with card", "results": [{"status": "failed", "error": {"message": "boom"}}]}]
	      }]
	    }]
	  }]
	}`)
	sum, ok := Parse(path)
	if !ok {
		t.Fatalf("expected summary")
	}
	if sum.Title != "checkout.spec.ts > Checkout > pays with card" {
		t.Fatalf("title = %q", sum.Title)
	}
}

func TestParseSuiteTreeAllPassing(t *testing.T) {
	path := writeReport(t, "run.json", `{
	  "suites": [{"title": "Login", "specs": [{"title": "ok", "tests": [{"title": "ok", "results": [{"status": "passed"}]}]}]}]
	}`)
	if _, ok := Parse(path); ok {
		t.Fatalf("passing report must be unavailable")
	}
}

const xunitReport = `<?xml version="1.0" encoding="utf-8"?>
<testsuites>
  <testsuite name="pytest" tests="2" failures="1">
    <testcase classname="tests.test_login" name="test_submit_ok" time="0.8"/>
    <testcase classname="tests.test_login" name="test_submit_fails" time="5.1">
      <failure message="AssertionError: button not visible">Traceback (most recent call last):
  File "tests/test_login.py", line 21</failure>
    </testcase>
  </testsuite>
</testsuites>`

func TestParseXUnit(t *testing.T) {
	path := writeReport(t, "run.xml", xunitReport)
	sum, ok := Parse(path)
	if !ok {
		t.Fatalf("expected summary")
	}
	if sum.Title != "tests.test_login.test_submit_fails" {
		t.Fatalf("title = %q", sum.Title)
	}
	if sum.Message != "AssertionError: button not visible" {
		t.Fatalf("message = %q", sum.Message)
	}
	if sum.Stack == "" {
		t.Fatalf("expected stack text")
	}
}

func TestParseXUnitBareSuiteRoot(t *testing.T) {
	path := writeReport(t, "run.xml", `<testsuite name="pytest" tests="1" errors="1">
  <testcase classname="tests.test_boot" name="test_start"><error message="ImportError: playwright"/></testcase>
</testsuite>`)
	sum, ok := Parse(path)
	if !ok || sum.Title != "tests.test_boot.test_start" || sum.Message != "ImportError: playwright" {
		t.Fatalf("got (%+v, %v)", sum, ok)
	}
}

func TestParseUnavailable(t *testing.T) {
	cases := map[string]string{
		"truncated.json": `{"suites": [{"title": "Log`,
		"truncated.xml":  `<testsuites><testsuite`,
		"empty.json":     ``,
		"unknown.txt":    `not a report`,
	}
	for name, body := range cases {
		if _, ok := Parse(writeReport(t, name, body)); ok {
			t.Fatalf("%s should be unavailable", name)
		}
	}
	if _, ok := Parse(filepath.Join(t.TempDir(), "missing.json")); ok {
		t.Fatalf("missing file should be unavailable")
	}
}
