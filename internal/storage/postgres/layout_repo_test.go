package postgres

import (
	"strings"
	"testing"
)

func TestBuildCreateSQL_CreatesTableAndIndex(t *testing.T) {
	t.Parallel()

	stmts := buildCreateSQL("header_layouts")
	if len(stmts) != 2 {
		t.Fatalf("buildCreateSQL returned %d statements, want 2", len(stmts))
	}
	if !strings.Contains(stmts[0], `CREATE TABLE IF NOT EXISTS "header_layouts"`) {
		t.Fatalf("create statement missing table: %q", stmts[0])
	}
	for _, col := range []string{"source TEXT", "header_offset INTEGER", "columns_json JSONB", "created_at TIMESTAMPTZ"} {
		if !strings.Contains(stmts[0], col) {
			t.Fatalf("create statement missing %q: %q", col, stmts[0])
		}
	}
	if !strings.Contains(stmts[1], `"header_layouts_source_idx"`) {
		t.Fatalf("index statement missing name: %q", stmts[1])
	}
}

func TestBuildInsertSQL_ReturnsID(t *testing.T) {
	t.Parallel()

	q := buildInsertSQL("header_layouts")
	if !strings.HasSuffix(q, "RETURNING id") {
		t.Fatalf("insert statement should return id: %q", q)
	}
	if strings.Count(q, "$") != 6 {
		t.Fatalf("insert statement should bind 6 params: %q", q)
	}
}

func TestBuildLatestSQL_OrdersNewestFirst(t *testing.T) {
	t.Parallel()

	q := buildLatestSQL("header_layouts")
	if !strings.Contains(q, "ORDER BY created_at DESC, id DESC LIMIT 1") {
		t.Fatalf("latest statement ordering: %q", q)
	}
	if !strings.Contains(q, "columns_json::text") {
		t.Fatalf("latest statement should read columns as text: %q", q)
	}
}

func TestPgIdent_EscapesQuotes(t *testing.T) {
	t.Parallel()

	if got := pgIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf(`pgIdent(we"ird) = %s, want "we""ird"`, got)
	}
}
