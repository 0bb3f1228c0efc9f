package pgportal

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/mark3labs/mcp-go/mcp"
)

func queryToolRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "query",
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return tc.Text
}

func TestHandleQueryTool_DefaultFormatIsJSONEnvelope(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		return newRows([]string{"id", "name"}, []any{1, "Alice"}), nil
	}}
	p := newTestPortal(t, Config{}, db)

	result, err := p.handleQueryTool(context.Background(), queryToolRequest(map[string]any{
		"sql": "SELECT id, name FROM users",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	text := resultText(t, result)
	assertContains(t, text, `"columns":["id","name"]`)
	assertContains(t, text, `"row_count":1`)
	assertContains(t, text, `"has_more":false`)
}

func TestHandleQueryTool_CSVFormat(t *testing.T) {
	t.Parallel()

	db := &fakeDB{queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		return newRows([]string{"id", "name"}, []any{1, "Alice"}), nil
	}}
	p := newTestPortal(t, Config{}, db)

	result, err := p.handleQueryTool(context.Background(), queryToolRequest(map[string]any{
		"sql":    "SELECT id, name FROM users",
		"format": "csv",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	text := resultText(t, result)
	if !strings.HasPrefix(text, "id,name") {
		t.Fatalf("expected CSV header, got %q", text)
	}
	assertContains(t, text, "1,Alice")
}

func TestHandleQueryTool_UnknownFormat(t *testing.T) {
	t.Parallel()

	p := newTestPortal(t, Config{}, &fakeDB{})
	result, err := p.handleQueryTool(context.Background(), queryToolRequest(map[string]any{
		"sql":    "SELECT 1",
		"format": "xml",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an unknown format")
	}
}

func TestHandleQueryTool_MissingSQL(t *testing.T) {
	t.Parallel()

	p := newTestPortal(t, Config{}, &fakeDB{})
	result, err := p.handleQueryTool(context.Background(), queryToolRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for missing sql")
	}
}

func TestHandleQueryTool_BlockedStatementIsErrorResult(t *testing.T) {
	t.Parallel()

	p := newTestPortal(t, Config{}, &fakeDB{})
	result, err := p.handleQueryTool(context.Background(), queryToolRequest(map[string]any{
		"sql": "DROP TABLE users",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for a blocked statement")
	}
	assertContains(t, resultText(t, result), "DROP")
}

func TestRequestLength_WithArguments(t *testing.T) {
	t.Parallel()
	req := queryToolRequest(map[string]any{"sql": "SELECT 1"})
	length := requestLength(req)
	// {"sql":"SELECT 1"} = 18 bytes
	if length != 18 {
		t.Fatalf("expected request length 18, got %d", length)
	}
}

func TestRequestLength_NoArguments(t *testing.T) {
	t.Parallel()
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: "list_tables"},
	}
	if length := requestLength(req); length != 0 {
		t.Fatalf("expected request length 0 for no arguments, got %d", length)
	}
}

func TestResultLength_TextResult(t *testing.T) {
	t.Parallel()
	result := mcp.NewToolResultText(`{"columns":["id"],"rows":[]}`)
	if length := resultLength(result); length != 28 {
		t.Fatalf("expected result length 28, got %d", length)
	}
}

func TestResultLength_NilResult(t *testing.T) {
	t.Parallel()
	if length := resultLength(nil); length != 0 {
		t.Fatalf("expected result length 0 for nil, got %d", length)
	}
}
