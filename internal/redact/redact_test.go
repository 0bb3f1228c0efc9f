package redact

import (
	"testing"
)

func testMasker(t *testing.T) *Masker {
	t.Helper()
	m, err := NewMasker([]Rule{
		{Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Replacement: "[EMAIL]"},
		{Pattern: `\d{3}-\d{4}`, Replacement: "***-****"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMaskRows_StringFields(t *testing.T) {
	t.Parallel()
	rows := []map[string]any{
		{"email": "alice@example.com", "phone": "555-1234", "id": 7},
	}
	got := testMasker(t).MaskRows(rows)
	if got[0]["email"] != "[EMAIL]" {
		t.Fatalf("email not masked: %v", got[0]["email"])
	}
	if got[0]["phone"] != "***-****" {
		t.Fatalf("phone not masked: %v", got[0]["phone"])
	}
	if got[0]["id"] != 7 {
		t.Fatalf("non-string field changed: %v", got[0]["id"])
	}
}

func TestMaskRows_NestedJSONB(t *testing.T) {
	t.Parallel()
	rows := []map[string]any{
		{
			"meta": map[string]any{
				"contact": "bob@test.org",
				"tags":    []any{"x", "carol@test.org"},
			},
		},
	}
	got := testMasker(t).MaskRows(rows)
	meta := got[0]["meta"].(map[string]any)
	if meta["contact"] != "[EMAIL]" {
		t.Fatalf("nested value not masked: %v", meta["contact"])
	}
	tags := meta["tags"].([]any)
	if tags[1] != "[EMAIL]" {
		t.Fatalf("array value not masked: %v", tags[1])
	}
}

func TestMaskRows_NoRulesPassthrough(t *testing.T) {
	t.Parallel()
	m, err := NewMasker(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Active() {
		t.Fatal("expected inactive masker")
	}
	rows := []map[string]any{{"email": "alice@example.com"}}
	if got := m.MaskRows(rows); got[0]["email"] != "alice@example.com" {
		t.Fatalf("value changed: %v", got[0]["email"])
	}
}

func TestNewMasker_InvalidPattern(t *testing.T) {
	t.Parallel()
	if _, err := NewMasker([]Rule{{Pattern: "("}}); err == nil {
		t.Fatal("expected error")
	}
}
