// Package redact applies regex replacement rules to result field values
// before they are rendered, so sensitive columns (emails, tokens, card
// numbers) can be masked without touching the statement itself.
package redact

import (
	"fmt"
	"regexp"
)

// Rule replaces every match of Pattern with Replacement in string fields.
type Rule struct {
	Pattern     string
	Replacement string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Masker applies the configured rules to row values. Safe for concurrent
// use as long as each call gets its own rows slice; masking mutates in place.
type Masker struct {
	rules []compiledRule
}

// NewMasker compiles the rule set. Returns an error on an invalid pattern.
func NewMasker(rules []Rule) (*Masker, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement}
	}
	return &Masker{rules: compiled}, nil
}

// Active reports whether any rule is configured.
func (m *Masker) Active() bool {
	return len(m.rules) > 0
}

// MaskRows rewrites string values in place, recursing into nested maps and
// arrays (JSONB columns decode to those). Non-string values pass through.
func (m *Masker) MaskRows(rows []map[string]any) []map[string]any {
	if !m.Active() {
		return rows
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = m.maskValue(v)
		}
	}
	return rows
}

func (m *Masker) maskValue(v any) any {
	switch val := v.(type) {
	case string:
		out := val
		for _, rule := range m.rules {
			out = rule.pattern.ReplaceAllString(out, rule.replacement)
		}
		return out
	case map[string]any:
		for k, nested := range val {
			val[k] = m.maskValue(nested)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = m.maskValue(item)
		}
		return val
	default:
		return v
	}
}
