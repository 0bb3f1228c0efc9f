package pgportal

// QueryInput is the input for the query tool.
type QueryInput struct {
	SQL    string `json:"sql"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// QueryOutput is the output of the query tool. Every failure mode (gate
// rejections, pagination validation, timeouts, driver errors) lands in
// Error; callers never see a Go error from the pipeline.
type QueryOutput struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	// HasMore reports that at least one row beyond the requested limit
	// exists, detected by fetching limit+1 rows internally.
	HasMore bool   `json:"has_more"`
	Error   string `json:"error,omitempty"`
}

// TableEntry is a single relation in the list_tables output.
type TableEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "table", "view", "materialized_view", "foreign_table", "partitioned_table"
	Owner  string `json:"owner"`
}

// ListTablesOutput is the output of the list_tables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
}

// DescribeTableInput is the input for the describe_table tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	Default      string `json:"default,omitempty"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
}

// ForeignKeyInfo describes a single foreign key.
type ForeignKeyInfo struct {
	Name              string `json:"name"`
	Columns           string `json:"columns"`
	ReferencedTable   string `json:"referenced_table"`
	ReferencedColumns string `json:"referenced_columns"`
}

// DescribeTableOutput is the output of the describe_table tool.
type DescribeTableOutput struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
}
