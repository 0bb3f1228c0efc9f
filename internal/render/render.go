// Package render turns query result rows into one of four textual formats:
// json, table, markdown, or csv.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
)

// Format is a caller-chosen output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat maps a request string to a Format. Empty means json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q: must be one of json, table, markdown, csv", s)
	}
}

// Rows renders the result set in the given format. Column order is taken
// from cols, not from map iteration, so output is deterministic.
func Rows(format Format, cols []string, rows []map[string]any) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(rows)
	case FormatTable:
		return renderTable(cols, rows), nil
	case FormatMarkdown:
		return renderMarkdown(cols, rows), nil
	case FormatCSV:
		return renderCSV(cols, rows)
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}

func renderJSON(rows []map[string]any) (string, error) {
	if rows == nil {
		rows = []map[string]any{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode rows as JSON: %w", err)
	}
	return string(b), nil
}

func renderTable(cols []string, rows []map[string]any) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	seps := make([]string, len(cols))
	for i, c := range cols {
		seps[i] = strings.Repeat("-", len(c))
	}
	fmt.Fprintln(w, strings.Join(seps, "\t"))
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cellString(row[c])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

func renderMarkdown(cols []string, rows []map[string]any) string {
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(escapeCells(cols), " | ") + " |\n")
	seps := make([]string, len(cols))
	for i := range cols {
		seps[i] = "---"
	}
	sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = escapeMarkdown(cellString(row[c]))
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderCSV(cols []string, rows []map[string]any) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(cols); err != nil {
		return "", fmt.Errorf("failed to encode CSV header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = cellString(row[c])
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to encode CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to encode CSV: %w", err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = escapeMarkdown(c)
	}
	return out
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
