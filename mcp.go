package pgportal

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kellerva/pgportal/internal/render"
)

// RegisterMCPTools registers query, list_tables, and describe_table as MCP
// tools on the given server. No handler ever returns a Go error for a
// failed call; failures become tool error results.
func RegisterMCPTools(mcpServer *server.MCPServer, portal *Portal) {
	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a read-only SQL query against the PostgreSQL database. Results are paginated and rendered in the requested format."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to execute"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return (default and cap: 1000)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Rows to skip before returning results (default 0)"),
		),
		mcp.WithString("format",
			mcp.Description("Output format: json, table, markdown, or csv (default json)"),
		),
	)

	mcpServer.AddTool(queryTool, portal.loggedToolHandler("query", portal.handleQueryTool))

	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables, views, materialized views, and foreign tables accessible to the current user."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, portal.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := portal.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal list tables result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the schema of a table: columns, types, indexes, and foreign keys."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithString("schema",
			mcp.Description("The schema name (defaults to 'public')"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, portal.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output, err := portal.DescribeTable(ctx, DescribeTableInput{
			Table:  table,
			Schema: req.GetString("schema", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal describe table result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))
}

func (p *Portal) handleQueryTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError("sql parameter is required"), nil
	}
	format, err := render.ParseFormat(req.GetString("format", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output := p.Query(ctx, QueryInput{
		SQL:    sql,
		Limit:  req.GetInt("limit", 0),
		Offset: req.GetInt("offset", 0),
	})
	if output.Error != "" {
		return mcp.NewToolResultError(output.Error), nil
	}

	if format == render.FormatJSON {
		// JSON carries the result envelope, not just the rows. Text
		// rendering is skipped entirely for the default format.
		envelope, err := json.Marshal(output)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal query result"), nil
		}
		return mcp.NewToolResultText(string(envelope)), nil
	}
	rendered, err := render.Rows(format, output.Columns, output.Rows)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(rendered), nil
}

// loggedToolHandler wraps a tool handler to log request and response sizes.
func (p *Portal) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		p.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", resultLength(result)).
			Msg("tool call")
		return result, err
	}
}

func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
