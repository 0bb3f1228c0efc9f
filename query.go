package pgportal

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kellerva/pgportal/internal/paginate"
	"github.com/kellerva/pgportal/internal/sqlguard"
)

// Query runs the full pipeline: pagination validation, safety gate,
// pagination rewrite, readiness wait, bounded execution, redaction. Every
// failure is converted into output.Error (with any matching error hints
// appended), so callers only ever check output.Error.
func (p *Portal) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()

	window, err := paginate.NewWindow(input.Limit, input.Offset, p.config.Query.MaxRows)
	if err != nil {
		return p.handleError(&ValidationError{Reason: err.Error()})
	}

	if err := p.guard.Check(input.SQL); err != nil {
		return p.handleError(&ValidationError{Reason: err.Error()})
	}

	// One extra row is fetched so "more rows exist" is detectable without
	// a second round trip; it is trimmed off below. Write statements (only
	// reachable in insecure mode) take no LIMIT clause and run as-is.
	sql := sqlguard.Normalize(input.SQL)
	if isSelect(sql) {
		sql = paginate.Apply(sql, window.Limit+1, window.Offset)
	}

	db, err := p.lifecycle.WaitForReady(p.config.Query.InitWaitTimeout)
	if err != nil {
		return p.handleError(err)
	}

	execTimeout, timeoutRule := p.timeouts.Resolve(sql)
	cols, rows, err := p.execute(ctx, db, sql, execTimeout)
	if err != nil {
		return p.handleError(err)
	}

	hasMore := false
	if len(rows) > p.config.Query.MaxRows {
		p.logger.Warn().
			Int("returned_rows", len(rows)).
			Int("truncated_to", p.config.Query.MaxRows).
			Msg("result set exceeded max rows, truncated")
		rows = rows[:p.config.Query.MaxRows]
		hasMore = true
	}
	if len(rows) > window.Limit {
		rows = rows[:window.Limit]
		hasMore = true
	}

	rows = p.masker.MaskRows(rows)

	logEvent := p.logger.Info().
		Int("row_count", len(rows)).
		Bool("has_more", hasMore).
		Dur("duration", time.Since(startTime))
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if p.masker.Active() {
		logEvent = logEvent.Bool("redacted", true)
	}
	logEvent.Msg("query executed")

	return &QueryOutput{
		Columns:  cols,
		Rows:     rows,
		RowCount: len(rows),
		HasMore:  hasMore,
	}
}

// isSelect reports whether a normalized statement starts with SELECT or
// WITH. Anything else can only have passed the gate in insecure mode.
func isSelect(sql string) bool {
	upper := strings.ToUpper(sql)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

type execResult struct {
	cols []string
	rows []map[string]any
	err  error
}

// execute races the driver call against a timer. The loser is abandoned,
// not cancelled: on timeout the goroutine's eventual result is discarded
// into the buffered channel, and the statement may keep running on the
// server (known limitation).
func (p *Portal) execute(ctx context.Context, db DB, sql string, execTimeout time.Duration) ([]string, []map[string]any, error) {
	startTime := time.Now()
	ch := make(chan execResult, 1)

	go func() {
		pgRows, err := db.Query(ctx, sql)
		if err != nil {
			ch <- execResult{err: err}
			return
		}
		cols, rows, err := collectRows(pgRows)
		ch <- execResult{cols: cols, rows: rows, err: err}
	}()

	timer := time.NewTimer(execTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			p.logger.Error().
				Err(res.err).
				Int("sql_length", len(sql)).
				Dur("duration", time.Since(startTime)).
				Msg("query failed")
			return nil, nil, &ExecError{Err: res.err}
		}
		return res.cols, res.rows, nil
	case <-timer.C:
		p.logger.Warn().
			Int("sql_length", len(sql)).
			Dur("timeout", execTimeout).
			Msg("query timed out")
		return nil, nil, &TimeoutError{Op: "query execution", Limit: execTimeout}
	}
}

// collectRows drains a pgx.Rows into JSON-friendly maps.
func collectRows(rows pgx.Rows) ([]string, []map[string]any, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	cols := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		cols[i] = fd.Name
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = convertValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// convertValue maps pgx-returned values to JSON-friendly Go types.
func convertValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float32:
		return convertFloat(float64(val))
	case float64:
		return convertFloat(val)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if val.NaN {
			return "NaN"
		}
		b, err := val.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		return formatInterval(val)
	case [16]byte:
		// UUID
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, nested := range val {
			out[k] = convertValue(nested)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = convertValue(item)
		}
		return out
	default:
		return val
	}
}

func convertFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func formatInterval(val pgtype.Interval) string {
	var parts []string
	if val.Months != 0 {
		parts = append(parts, fmt.Sprintf("%d mon(s)", val.Months))
	}
	if val.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d day(s)", val.Days))
	}
	if val.Microseconds != 0 {
		parts = append(parts, (time.Duration(val.Microseconds) * time.Microsecond).String())
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, " ")
}

// handleError converts any pipeline error into a QueryOutput. Matching
// error hints are appended so the calling agent can self-correct.
func (p *Portal) handleError(err error) *QueryOutput {
	errMsg := err.Error()
	hints := p.hints.Hints(errMsg)
	patterns := p.hints.Patterns(errMsg)

	logEvent := p.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_hints", patterns)
	}
	logEvent.Msg("query error")

	if hints != "" {
		errMsg = errMsg + "\n\n" + hints
	}
	return &QueryOutput{Error: errMsg}
}
