// Package errhint matches failure messages against configured patterns and
// returns guidance text to append for the calling agent (for example,
// steering it toward LIMIT clauses after a timeout).
package errhint

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule appends Hint to any error message matching Pattern.
type Rule struct {
	Pattern string
	Hint    string
}

type compiledRule struct {
	pattern *regexp.Regexp
	hint    string
}

// Matcher evaluates error messages against all rules. Safe for concurrent use.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher compiles the rule set. Returns an error on an invalid pattern.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errhint: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, hint: r.Hint}
	}
	return &Matcher{rules: compiled}, nil
}

// Hints returns the hints of every matching rule, top to bottom, joined by
// newlines. Empty string when nothing matches.
func (m *Matcher) Hints(errMsg string) string {
	var hints []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			hints = append(hints, rule.hint)
		}
	}
	return strings.Join(hints, "\n")
}

// Patterns returns the rule patterns that matched, for audit logging.
func (m *Matcher) Patterns(errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
