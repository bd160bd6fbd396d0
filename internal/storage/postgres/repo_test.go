package postgres

import (
	"strings"
	"testing"

	"ratesheet/internal/storage"
)

func TestBuildCreateSQL_QualifiedNameCreatesSchema(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "pricing.rates_vu",
		Columns: []storage.ColumnSpec{
			{Name: "row_hash", Type: storage.TypeText},
			{Name: "volume", Type: storage.TypeText, Nullable: true},
			{Name: "loaded_at", Type: storage.TypeTimestamp},
		},
		Unique: []string{"row_hash"},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "pricing";` {
		t.Fatalf("schemaSQL = %q", schemaSQL)
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "pricing"."rates_vu"`,
		`"row_hash" TEXT NOT NULL`,
		`"volume" TEXT,`,
		`"loaded_at" TIMESTAMPTZ NOT NULL`,
		`UNIQUE ("row_hash")`,
	} {
		if !strings.Contains(tableSQL, want) {
			t.Fatalf("tableSQL %q missing %q", tableSQL, want)
		}
	}
}

func TestBuildCreateSQL_UnqualifiedHasNoSchema(t *testing.T) {
	t.Parallel()

	schemaSQL, tableSQL, err := buildCreateSQL(storage.TableSpec{
		Name:    "rates_vp",
		Columns: []storage.ColumnSpec{{Name: "a", Type: storage.TypeText}},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != "" {
		t.Fatalf("schemaSQL = %q, want empty", schemaSQL)
	}
	if strings.Contains(tableSQL, "UNIQUE") {
		t.Fatalf("tableSQL has UNIQUE without unique columns: %q", tableSQL)
	}
}

func TestBuildCreateSQL_InvalidSpec(t *testing.T) {
	t.Parallel()

	if _, _, err := buildCreateSQL(storage.TableSpec{Name: "t"}); err == nil {
		t.Fatalf("expected error for table without columns")
	}
}

func TestBuildInsertSQL_NoDedupe_NoOnConflict(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL(
		"rates_vp",
		[]string{"row_hash", "category", "daily_rate"},
		[][]any{
			{"h1", "A", nil},
			{"h2", "B", "40,00"},
		},
		nil,
	)

	if strings.Contains(sql, "ON CONFLICT") {
		t.Fatalf("expected no ON CONFLICT clause, got: %q", sql)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if !strings.Contains(sql, "VALUES ($1, $2, $3), ($4, $5, $6)") {
		t.Fatalf("unexpected VALUES placeholders: %q", sql)
	}
}

func TestBuildInsertSQL_WithDedupe_AddsOnConflictDoNothing(t *testing.T) {
	t.Parallel()

	sql, _ := buildInsertSQL(
		"public.rates_vp",
		[]string{"row_hash", "category"},
		[][]any{{"h1", "A"}, {"h1", "A"}},
		[]string{"row_hash"},
	)

	if !strings.HasPrefix(sql, `INSERT INTO "public"."rates_vp"`) {
		t.Fatalf("unexpected table ident: %q", sql)
	}
	if !strings.HasSuffix(sql, `ON CONFLICT ("row_hash") DO NOTHING;`) {
		t.Fatalf("expected ON CONFLICT DO NOTHING, got: %q", sql)
	}
}

func TestSplitQualifiedName(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, schema, table string }{
		{"public.t", "public", "t"},
		{" t ", "", "t"},
		{"a.b.c", "", "a.b.c"},
	}
	for _, tc := range tests {
		s, tb := splitQualifiedName(tc.in)
		if s != tc.schema || tb != tc.table {
			t.Fatalf("splitQualifiedName(%q) = (%q,%q), want (%q,%q)", tc.in, s, tb, tc.schema, tc.table)
		}
	}
}
