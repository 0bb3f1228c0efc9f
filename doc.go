// Package pgportal exposes a PostgreSQL database to AI agents through the
// Model Context Protocol (MCP), restricted to read-only access by default.
//
// Three tools are provided — query, list_tables, and describe_table. Every
// statement submitted to query passes through a safety pipeline before it
// reaches the database: comment stripping and whitespace normalization, a
// keyword/pattern gate that rejects anything but SELECT/WITH statements,
// deterministic LIMIT/OFFSET injection, and a bounded executor that races
// the driver call against a wall-clock timeout and caps returned rows.
//
// The connection pool can be reached directly or through an SSH tunnel; a
// single lifecycle manager owns both, so tool calls arriving before the
// pool finishes connecting wait for readiness instead of failing.
//
// # Library Usage
//
//	p, err := pgportal.New(pgportal.Config{
//		Connection: pgportal.ConnectionConfig{
//			Host: "db.internal", Database: "app", User: "reader", Password: pw,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	go p.Initialize(context.Background())
//
//	// Use directly
//	output := p.Query(ctx, pgportal.QueryInput{SQL: "SELECT * FROM users", Limit: 50})
//
//	// Or register as MCP tools
//	pgportal.RegisterMCPTools(mcpServer, p)
//
// # Safety model
//
// The gate is a defense-in-depth keyword/pattern filter, not a SQL parser.
// It is content-blind: a string literal equal to a blocked keyword (for
// example WHERE name = 'INSERT') is also rejected. Setting Insecure
// disables the read-only checks entirely; length and emptiness checks
// still apply.
package pgportal
