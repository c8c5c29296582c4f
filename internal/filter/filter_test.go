package filter

import (
	"strings"
	"testing"
	"time"
)

func TestParseAuditFilterEmpty(t *testing.T) {
	cond, err := ParseAuditFilter("")
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "" || len(cond.Params) != 0 {
		t.Fatalf("expected empty condition, got %+v", cond)
	}

	cond, err = ParseAuditFilter("   ")
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "" {
		t.Fatalf("expected empty condition for whitespace, got %q", cond.Clause)
	}
}

func TestParseAuditFilterEquality(t *testing.T) {
	cond, err := ParseAuditFilter(`action = "APPROVED"`)
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "action = ?" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	if len(cond.Params) != 1 || cond.Params[0] != "APPROVED" {
		t.Fatalf("params = %v", cond.Params)
	}
}

func TestParseAuditFilterAnd(t *testing.T) {
	cond, err := ParseAuditFilter(`actor_id = "sup-1" AND action != "CREATED"`)
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "(actor_id = ? AND action != ?)" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	if len(cond.Params) != 2 || cond.Params[0] != "sup-1" || cond.Params[1] != "CREATED" {
		t.Fatalf("params = %v", cond.Params)
	}
}

func TestParseAuditFilterOr(t *testing.T) {
	cond, err := ParseAuditFilter(`actor_role = "SUPERVISOR" OR actor_role = "AUDITOR"`)
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "(actor_role = ? OR actor_role = ?)" {
		t.Fatalf("clause = %q", cond.Clause)
	}
}

func TestParseAuditFilterTimestamp(t *testing.T) {
	cond, err := ParseAuditFilter(`ts >= timestamp("2026-01-02T15:04:05Z")`)
	if err != nil {
		t.Fatalf("ParseAuditFilter: %v", err)
	}
	if cond.Clause != "timestamp >= ?" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC).UnixMilli()
	got, ok := cond.Params[0].(int64)
	if !ok || got != want {
		t.Fatalf("params = %v, want %d", cond.Params, want)
	}
}

func TestParseAuditFilterUnknownField(t *testing.T) {
	_, err := ParseAuditFilter(`severity = "HIGH"`)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseAuditFilterBadSyntax(t *testing.T) {
	_, err := ParseAuditFilter(`action = `)
	if err == nil || !strings.Contains(err.Error(), "parse filter") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
