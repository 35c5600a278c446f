// Package classify decides whether an OS process is a monitored
// test-automation run and which browser engine it drives.
package classify

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs a command-line pattern with an engine tag. An empty Engine
// means the engine is sniffed from the command line after the match.
type Rule struct {
	Pattern string `toml:"pattern" mapstructure:"pattern"`
	Engine  string `toml:"engine" mapstructure:"engine"`
}

type compiledRule struct {
	re     *regexp.Regexp
	engine string
}

// Matcher applies an ordered rule list to command lines. Rules are tried
// in order and the first match wins. Safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// New compiles the given rules. Patterns are case-insensitive.
func New(rules []Rule) (*Matcher, error) {
	m := &Matcher{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("classification rule requires a pattern")
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid classification pattern %q: %w", r.Pattern, err)
		}
		m.rules = append(m.rules, compiledRule{re: re, engine: r.Engine})
	}
	return m, nil
}

// Default returns the matcher for the stock rule set covering Node and
// Python Playwright invocations.
func Default() *Matcher {
	m, err := New(DefaultRules())
	if err != nil {
		panic(err) // stock patterns are compile-checked by tests
	}
	return m
}

// DefaultRules lists the built-in classification rules.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `node.*playwright.*test`},
		{Pattern: `npx\s+playwright\s+test`},
		{Pattern: `playwright\s+test`},
		{Pattern: `pytest.*playwright`},
		{Pattern: `pytest.*--browser`},
		{Pattern: `python.*-m\s+pytest.*playwright`},
	}
}

// Match reports whether the command line belongs to a subject process and
// returns the engine tag for it. A rule without an explicit engine falls
// back to sniffing the command line; chromium is the default engine.
func (m *Matcher) Match(cmdline []string) (string, bool) {
	if len(cmdline) == 0 {
		return "", false
	}
	joined := strings.Join(cmdline, " ")
	for _, r := range m.rules {
		if !r.re.MatchString(joined) {
			continue
		}
		if r.engine != "" {
			return r.engine, true
		}
		return sniffEngine(joined), true
	}
	return "", false
}

func sniffEngine(cmdline string) string {
	lower := strings.ToLower(cmdline)
	switch {
	case strings.Contains(lower, "firefox"):
		return "firefox"
	case strings.Contains(lower, "webkit"):
		return "webkit"
	default:
		// Most runs drive chromium even without an explicit flag.
		return "chromium"
	}
}
