// Package sqlguard normalizes SQL statements and decides whether they are
// safe to send to the database. The gate is a keyword/pattern filter, not a
// parser: a blocked keyword inside a string literal still blocks. That is a
// documented limitation of the filter, not a bug.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// BlockedKeywords are rejected as whole words anywhere in a normalized
// statement unless the checker runs in insecure mode.
var BlockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "REPLACE", "MERGE", "GRANT", "REVOKE",
	"EXEC", "EXECUTE", "CALL", "COPY", "IMPORT",
}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	whitespace   = regexp.MustCompile(`\s+`)

	leadingVerb = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
	keywordScan = regexp.MustCompile(`(?i)\b(` + strings.Join(BlockedKeywords, "|") + `)\b`)

	// Stacked-statement injection: a semicolon followed by a write keyword.
	stackedWrite = regexp.MustCompile(`(?i);\s*(` + strings.Join(BlockedKeywords, "|") + `)\b`)
	intoOutfile  = regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`)
	loadData     = regexp.MustCompile(`(?i)\bLOAD\s+DATA\b`)
)

// Normalize strips comments and collapses whitespace so keyword filtering
// cannot be bypassed by comment injection. Block comments are removed
// first-open-to-first-close; they do not nest. Pure and idempotent.
func Normalize(sql string) string {
	s := blockComment.ReplaceAllString(sql, " ")
	s = lineComment.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Config is the checker's own config type.
type Config struct {
	// MaxQueryLength caps the raw (pre-normalization) statement length,
	// counted in characters, not bytes.
	MaxQueryLength int
	// Insecure skips the read-only checks entirely. Length and emptiness
	// checks still apply.
	Insecure bool
}

// Checker classifies statements as allowed or blocked. Safe for concurrent use.
type Checker struct {
	config Config
	logger zerolog.Logger
}

// NewChecker creates a Checker. Panics if MaxQueryLength is not positive.
func NewChecker(config Config, logger zerolog.Logger) *Checker {
	if config.MaxQueryLength <= 0 {
		panic("sqlguard: MaxQueryLength must be > 0")
	}
	return &Checker{config: config, logger: logger}
}

// Check returns nil if the statement may run, or a descriptive error naming
// the first failed check. It never panics on malformed input; malformed
// input is itself a block reason.
func (c *Checker) Check(raw string) error {
	normalized := Normalize(raw)

	if normalized == "" {
		return c.block(normalized, "empty", fmt.Errorf("query must be a non-empty string"))
	}
	if utf8.RuneCountInString(raw) > c.config.MaxQueryLength {
		return c.block(normalized, "length", fmt.Errorf("query exceeds maximum length of %d characters", c.config.MaxQueryLength))
	}
	if c.config.Insecure {
		c.logger.Debug().Str("sql", preview(normalized)).Msg("query allowed (insecure mode)")
		return nil
	}

	if !leadingVerb.MatchString(normalized) {
		word := firstWord(normalized)
		return c.block(normalized, "leading-verb", fmt.Errorf("only read-only statements are allowed: query starts with %s, expected SELECT or WITH", word))
	}
	if match := keywordScan.FindString(normalized); match != "" {
		kw := strings.ToUpper(match)
		return c.block(normalized, kw, fmt.Errorf("query contains blocked keyword %s", kw))
	}
	if stackedWrite.MatchString(normalized) {
		return c.block(normalized, "stacked-statement", fmt.Errorf("stacked write statement after semicolon is not allowed"))
	}
	if intoOutfile.MatchString(normalized) {
		return c.block(normalized, "INTO OUTFILE", fmt.Errorf("INTO OUTFILE is not allowed"))
	}
	if loadData.MatchString(normalized) {
		return c.block(normalized, "LOAD DATA", fmt.Errorf("LOAD DATA is not allowed"))
	}

	c.logger.Debug().Str("sql", preview(normalized)).Msg("query allowed")
	return nil
}

// block emits the security audit record and returns the block reason.
// The record carries a bounded preview, never the full statement.
func (c *Checker) block(normalized, rule string, err error) error {
	c.logger.Warn().
		Str("rule", rule).
		Str("sql_preview", preview(normalized)).
		Msg("query blocked")
	return err
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return strings.ToUpper(s[:i])
	}
	return strings.ToUpper(s)
}

const previewLen = 120

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	cut := previewLen
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
