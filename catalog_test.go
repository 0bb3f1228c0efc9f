package pgportal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestListTables(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		if !strings.Contains(sql, "pg_catalog.pg_class") {
			t.Errorf("unexpected catalog query: %s", sql)
		}
		return newRows([]string{"schema", "name", "type", "owner"},
			[]any{"public", "users", "table", "app"},
			[]any{"public", "user_totals", "view", "app"},
		), nil
	}}
	p := newTestPortal(t, Config{}, db)

	out, err := p.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(out.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(out.Tables))
	}
	if out.Tables[0].Name != "users" || out.Tables[0].Type != "table" {
		t.Fatalf("first entry = %+v", out.Tables[0])
	}
	if out.Tables[1].Type != "view" {
		t.Fatalf("second entry = %+v", out.Tables[1])
	}
}

func TestListTables_BeforeInitialize(t *testing.T) {
	t.Parallel()

	p, err := New(testConnConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.ListTables(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func describeFake(t *testing.T) *fakeDB {
	t.Helper()
	return &fakeDB{queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		switch {
		case strings.Contains(sql, "information_schema.columns"):
			return newRows([]string{"name", "type", "nullable", "default_val", "is_primary_key"},
				[]any{"id", "bigint", false, "nextval('users_id_seq')", true},
				[]any{"name", "text", true, "", false},
			), nil
		case strings.Contains(sql, "pg_indexes"):
			return newRows([]string{"name", "definition", "is_unique", "is_primary"},
				[]any{"users_pkey", "CREATE UNIQUE INDEX users_pkey ON public.users USING btree (id)", true, true},
			), nil
		case strings.Contains(sql, "pg_constraint"):
			return newRows([]string{"name", "columns", "referenced_table", "referenced_columns"},
				[]any{"orders_user_id_fkey", "user_id", "users", "id"},
			), nil
		default:
			t.Errorf("unexpected query: %s", sql)
			return newRows(nil), nil
		}
	}}
}

func TestDescribeTable(t *testing.T) {
	t.Parallel()

	p := newTestPortal(t, Config{}, describeFake(t))

	out, err := p.DescribeTable(context.Background(), DescribeTableInput{Table: "users"})
	if err != nil {
		t.Fatalf("DescribeTable: %v", err)
	}
	if out.Schema != "public" {
		t.Fatalf("expected default schema public, got %q", out.Schema)
	}
	if len(out.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(out.Columns))
	}
	if !out.Columns[0].IsPrimaryKey || out.Columns[0].Name != "id" {
		t.Fatalf("first column = %+v", out.Columns[0])
	}
	if len(out.Indexes) != 1 || !out.Indexes[0].IsUnique {
		t.Fatalf("indexes = %+v", out.Indexes)
	}
	if len(out.ForeignKeys) != 1 || out.ForeignKeys[0].ReferencedTable != "users" {
		t.Fatalf("foreign keys = %+v", out.ForeignKeys)
	}
}

func TestDescribeTable_UnknownTable(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		return newRows([]string{"name", "type", "nullable", "default_val", "is_primary_key"}), nil
	}}
	p := newTestPortal(t, Config{}, db)

	_, err := p.DescribeTable(context.Background(), DescribeTableInput{Table: "nope"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	assertContains(t, err.Error(), "does not exist")
}

func TestDescribeTable_RejectsBadIdentifiers(t *testing.T) {
	t.Parallel()

	p := newTestPortal(t, Config{}, &fakeDB{})

	for _, table := range []string{"users; DROP TABLE users", "a b", "", "1users"} {
		_, err := p.DescribeTable(context.Background(), DescribeTableInput{Table: table})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError for table %q, got %v", table, err)
		}
	}

	_, err := p.DescribeTable(context.Background(), DescribeTableInput{Table: "users", Schema: "bad schema"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for schema, got %v", err)
	}
}
