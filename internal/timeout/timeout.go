// Package timeout resolves the wall-clock budget for a statement. Known-heavy
// statements can be given longer (or shorter) budgets via regex rules; the
// rule set is fixed at startup.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a statement pattern to an execution timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the resolver's own config type.
type Config struct {
	Default time.Duration
	Rules   []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Resolver picks an execution timeout per statement. Safe for concurrent use.
type Resolver struct {
	rules      []compiledRule
	defaultVal time.Duration
}

// NewResolver compiles the rule set. Panics on an invalid pattern or a
// non-positive timeout.
func NewResolver(config Config) *Resolver {
	if config.Default <= 0 {
		panic("timeout: default timeout must be > 0")
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			panic(fmt.Sprintf("timeout: invalid regex pattern %q: %v", r.Pattern, err))
		}
		if r.Timeout <= 0 {
			panic(fmt.Sprintf("timeout: rule %q has non-positive timeout", r.Pattern))
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Resolver{rules: compiled, defaultVal: config.Default}
}

// Resolve returns the timeout for the statement and the pattern of the rule
// that matched, or the default and an empty pattern. First match wins.
func (r *Resolver) Resolve(sql string) (time.Duration, string) {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return r.defaultVal, ""
}
