package migrations

import (
	"reflect"
	"testing"
)

func TestFiles(t *testing.T) {
	pg := files(PostgresFS, "postgres")
	want := []string{"001_ohlc_bars.sql", "002_pipeline_runs.sql"}
	if !reflect.DeepEqual(pg, want) {
		t.Fatalf("postgres files = %v, want %v", pg, want)
	}
	if ch := files(ClickhouseFS, "clickhouse"); len(ch) == 0 {
		t.Fatal("no clickhouse migrations embedded")
	}
	if got := files(PostgresFS, "missing"); got != nil {
		t.Fatalf("missing dir = %v, want nil", got)
	}
}

func TestStatements(t *testing.T) {
	input := `-- header
CREATE TABLE a (x Int32);

  -- indented comment
CREATE TABLE b (
    y String -- trailing note
);
`
	got, err := statements(input)
	if err != nil {
		t.Fatalf("statements failed: %v", err)
	}
	want := []string{
		"CREATE TABLE a (x Int32)",
		"CREATE TABLE b (\n    y String \n)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("statements = %q, want %q", got, want)
	}

	got, err = statements("-- only\n\n")
	if err != nil || len(got) != 0 {
		t.Fatalf("comment-only input = %q, %v, want none", got, err)
	}
}

func TestStatements_StringLiterals(t *testing.T) {
	got, err := statements(`SELECT 'a;b -- c', 'it''s'; SELECT 1;`)
	if err != nil {
		t.Fatalf("statements failed: %v", err)
	}
	want := []string{`SELECT 'a;b -- c', 'it''s'`, "SELECT 1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("statements = %q, want %q", got, want)
	}
	if _, err := statements(`SELECT 'open`); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://user@localhost:9000/markets")
	if err != nil {
		t.Fatalf("databaseFromDSN failed: %v", err)
	}
	if db != "markets" {
		t.Fatalf("db = %q, want markets", db)
	}
	if _, err := databaseFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Fatal("expected error for dsn without database")
	}
}

func TestEmbeddedMigrationsSplitCleanly(t *testing.T) {
	for _, f := range files(ClickhouseFS, "clickhouse") {
		data, err := ClickhouseFS.ReadFile("clickhouse/" + f)
		if err != nil {
			t.Fatalf("read %s failed: %v", f, err)
		}
		stmts, err := statements(string(data))
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if len(stmts) == 0 {
			t.Fatalf("%s has no statements", f)
		}
	}
}
