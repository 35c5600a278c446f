package classify

import "testing"

func TestDefaultRulesCompile(t *testing.T) {
	if _, err := New(DefaultRules()); err != nil {
		t.Fatalf("default rules must compile: %v", err)
	}
}

func TestMatchSubjects(t *testing.T) {
	m := Default()
	cases := []struct {
		cmdline []string
		engine  string
		subject bool
	}{
		{[]string{"pytest", "--browser=chromium"}, "chromium", true},
		{[]string{"pytest", "--browser=firefox", "tests/"}, "firefox", true},
		{[]string{"npx", "playwright", "test"}, "chromium", true},
		{[]string{"node", "/usr/lib/playwright/cli.js", "test", "--project=webkit"}, "webkit", true},
		{[]string{"python", "-m", "pytest", "tests/test_playwright_login.py"}, "chromium", true},
		{[]string{"node", "app.js"}, "", false},
		{[]string{"sleep", "60"}, "", false},
		{nil, "", false},
	}
	for _, c := range cases {
		engine, ok := m.Match(c.cmdline)
		if ok != c.subject || engine != c.engine {
			t.Fatalf("Match(%v) = (%q, %v), want (%q, %v)", c.cmdline, engine, ok, c.engine, c.subject)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	m, err := New([]Rule{
		{Pattern: `pytest`, Engine: "firefox"},
		{Pattern: `pytest.*--browser`, Engine: "webkit"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	engine, ok := m.Match([]string{"pytest", "--browser=chromium"})
	if !ok || engine != "firefox" {
		t.Fatalf("expected first rule to win, got (%q, %v)", engine, ok)
	}
}

func TestInvalidPattern(t *testing.T) {
	if _, err := New([]Rule{{Pattern: "("}}); err == nil {
		t.Fatalf("expected compile error")
	}
	if _, err := New([]Rule{{Pattern: "  "}}); err == nil {
		t.Fatalf("expected error for blank pattern")
	}
}
