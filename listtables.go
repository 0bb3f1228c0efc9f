package pgportal

import (
	"context"
	"fmt"
	"time"
)

const listTablesSQL = `
SELECT
    n.nspname AS schema,
    c.relname AS name,
    CASE c.relkind
        WHEN 'r' THEN 'table'
        WHEN 'v' THEN 'view'
        WHEN 'm' THEN 'materialized_view'
        WHEN 'f' THEN 'foreign_table'
        WHEN 'p' THEN 'partitioned_table'
    END AS type,
    pg_catalog.pg_get_userbyid(c.relowner) AS owner
FROM pg_catalog.pg_class c
LEFT JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'v', 'm', 'f', 'p')
  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
  AND has_table_privilege(c.oid, 'SELECT')
ORDER BY n.nspname, c.relname;
`

// ListTables returns all relations readable by the current user. It uses
// the non-blocking pool accessor: during startup it fails fast with
// ErrNotInitialized instead of waiting.
func (p *Portal) ListTables(ctx context.Context) (*ListTablesOutput, error) {
	startTime := time.Now()

	db, err := p.lifecycle.PoolOrFail()
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, p.config.Query.CatalogTimeout)
	defer cancel()

	rows, err := db.Query(queryCtx, listTablesSQL)
	if err != nil {
		return nil, &ExecError{Err: fmt.Errorf("list tables: %w", err)}
	}
	defer rows.Close()

	tables := make([]TableEntry, 0)
	for rows.Next() {
		var entry TableEntry
		if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type, &entry.Owner); err != nil {
			return nil, &ExecError{Err: fmt.Errorf("list tables scan: %w", err)}
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecError{Err: fmt.Errorf("list tables rows: %w", err)}
	}

	p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("list_tables executed")

	return &ListTablesOutput{Tables: tables}, nil
}
