package pgportal

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

const describeColumnsSQL = `
SELECT
    c.column_name AS name,
    c.data_type AS type,
    CASE c.is_nullable WHEN 'YES' THEN true ELSE false END AS nullable,
    COALESCE(c.column_default, '') AS default_val,
    CASE WHEN pk.column_name IS NOT NULL THEN true ELSE false END AS is_primary_key
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
        ON tc.constraint_name = kcu.constraint_name
        AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
        AND tc.table_schema = $1
        AND tc.table_name = $2
) pk ON pk.column_name = c.column_name
WHERE c.table_schema = $1
    AND c.table_name = $2
ORDER BY c.ordinal_position;
`

const describeIndexesSQL = `
SELECT
    pi.indexname AS name,
    pi.indexdef AS definition,
    i.indisunique AS is_unique,
    i.indisprimary AS is_primary
FROM pg_catalog.pg_indexes pi
JOIN pg_catalog.pg_class c ON c.relname = pi.indexname AND c.relnamespace = (
    SELECT oid FROM pg_catalog.pg_namespace WHERE nspname = pi.schemaname
)
JOIN pg_catalog.pg_index i ON i.indexrelid = c.oid
WHERE pi.schemaname = $1 AND pi.tablename = $2
ORDER BY pi.indexname;
`

const describeForeignKeysSQL = `
SELECT
    con.conname AS name,
    pg_catalog.array_to_string(ARRAY(
        SELECT a.attname FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
        JOIN pg_catalog.pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
        ORDER BY k.ord
    ), ', ') AS columns,
    confrel.relname AS referenced_table,
    pg_catalog.array_to_string(ARRAY(
        SELECT a.attname FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
        JOIN pg_catalog.pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
        ORDER BY k.ord
    ), ', ') AS referenced_columns
FROM pg_catalog.pg_constraint con
JOIN pg_catalog.pg_class rel ON rel.oid = con.conrelid
JOIN pg_catalog.pg_class confrel ON confrel.oid = con.confrelid
JOIN pg_catalog.pg_namespace n ON n.oid = rel.relnamespace
WHERE con.contype = 'f' AND n.nspname = $1 AND rel.relname = $2
ORDER BY con.conname;
`

// Identifiers are passed as bind parameters to catalog queries, but reject
// anything that is not a plain identifier up front for a clearer error.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// DescribeTable returns columns, indexes, and foreign keys for one table.
// Like ListTables it fails fast during startup rather than waiting.
func (p *Portal) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	schema := input.Schema
	if schema == "" {
		schema = "public"
	}
	if !identPattern.MatchString(input.Table) {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid table name %q", input.Table)}
	}
	if !identPattern.MatchString(schema) {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid schema name %q", schema)}
	}

	db, err := p.lifecycle.PoolOrFail()
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.config.Query.CatalogTimeout)
	defer cancel()

	out := &DescribeTableOutput{
		Schema:      schema,
		Name:        input.Table,
		Columns:     make([]ColumnInfo, 0),
		Indexes:     make([]IndexInfo, 0),
		ForeignKeys: make([]ForeignKeyInfo, 0),
	}

	rows, err := db.Query(queryCtx, describeColumnsSQL, schema, input.Table)
	if err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe columns: %w", err)}
	}
	for rows.Next() {
		var col ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.IsPrimaryKey); err != nil {
			rows.Close()
			return nil, &ExecError{Err: fmt.Errorf("describe columns scan: %w", err)}
		}
		out.Columns = append(out.Columns, col)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe columns rows: %w", err)}
	}
	if len(out.Columns) == 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("table %s.%s does not exist or is not accessible", schema, input.Table)}
	}

	rows, err = db.Query(queryCtx, describeIndexesSQL, schema, input.Table)
	if err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe indexes: %w", err)}
	}
	for rows.Next() {
		var idx IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique, &idx.IsPrimary); err != nil {
			rows.Close()
			return nil, &ExecError{Err: fmt.Errorf("describe indexes scan: %w", err)}
		}
		out.Indexes = append(out.Indexes, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe indexes rows: %w", err)}
	}

	rows, err = db.Query(queryCtx, describeForeignKeysSQL, schema, input.Table)
	if err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe foreign keys: %w", err)}
	}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Columns, &fk.ReferencedTable, &fk.ReferencedColumns); err != nil {
			rows.Close()
			return nil, &ExecError{Err: fmt.Errorf("describe foreign keys scan: %w", err)}
		}
		out.ForeignKeys = append(out.ForeignKeys, fk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Err: fmt.Errorf("describe foreign keys rows: %w", err)}
	}

	p.logger.Info().
		Str("schema", schema).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Msg("describe_table executed")

	return out, nil
}
