// Package paginate derives bounded LIMIT/OFFSET windows and injects them
// into statements that lack explicit pagination.
package paginate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	limitClause  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	offsetClause = regexp.MustCompile(`(?i)\bOFFSET\s+\d+`)
)

// Window is the effective pagination bounds for one request. It is derived
// per call and never persisted.
type Window struct {
	Limit  int
	Offset int
}

// NewWindow validates caller-supplied bounds against maxRows. A limit of
// zero means "not provided" and defaults to maxRows; explicit limits are
// capped at maxRows. Errors name the invalid field.
func NewWindow(limit, offset, maxRows int) (Window, error) {
	if limit < 0 {
		return Window{}, fmt.Errorf("limit must be a positive integer, got %d", limit)
	}
	if offset < 0 {
		return Window{}, fmt.Errorf("offset must be a non-negative integer, got %d", offset)
	}
	if limit == 0 || limit > maxRows {
		limit = maxRows
	}
	return Window{Limit: limit, Offset: offset}, nil
}

// Apply injects LIMIT/OFFSET into a statement that lacks them. A statement
// that already carries both clauses is returned unmodified: the caller's
// explicit pagination wins. One trailing statement terminator is stripped
// either way. OFFSET is only appended when offset > 0.
func Apply(sql string, limit, offset int) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSuffix(sql, ";")
	sql = strings.TrimSpace(sql)

	hasLimit := limitClause.MatchString(sql)
	hasOffset := offsetClause.MatchString(sql)
	if hasLimit && hasOffset {
		return sql
	}
	if !hasLimit {
		sql = fmt.Sprintf("%s LIMIT %d", sql, limit)
	}
	if !hasOffset && offset > 0 {
		sql = fmt.Sprintf("%s OFFSET %d", sql, offset)
	}
	return sql
}
