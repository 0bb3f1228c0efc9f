package pgportal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is an in-memory DB implementation for unit tests.
type fakeDB struct {
	queryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	pingFunc  func(ctx context.Context) error
	closed    bool
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryFunc != nil {
		return f.queryFunc(ctx, sql, args...)
	}
	return nil, fmt.Errorf("fakeDB: Query not mocked")
}

func (f *fakeDB) Ping(ctx context.Context) error {
	if f.pingFunc != nil {
		return f.pingFunc(ctx)
	}
	return nil
}

func (f *fakeDB) Close() {
	f.closed = true
}

// newRows builds an in-memory pgx.Rows cursor over the given columns and
// row values.
func newRows(columns []string, data ...[]any) pgx.Rows {
	return &fakeRows{columns: columns, data: data, idx: -1}
}

type fakeRows struct {
	columns []string
	data    [][]any
	idx     int
	closed  bool
	rowsErr error
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, col := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: col}
	}
	return fields
}

func (r *fakeRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	if r.idx >= len(r.data) {
		return false
	}
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.data) {
		return nil, pgx.ErrNoRows
	}
	return r.data[r.idx], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.data) {
		return pgx.ErrNoRows
	}
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("fakeRows: scan dest count %d != column count %d", len(dest), len(row))
	}
	for i, val := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = val.(string)
		case *int:
			*d = val.(int)
		case *bool:
			*d = val.(bool)
		default:
			return fmt.Errorf("fakeRows: unsupported scan dest %T at column %d", dest[i], i)
		}
	}
	return nil
}
