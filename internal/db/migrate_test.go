package db

import (
	"strings"
	"testing"
)

func TestStatementsCoverTables(t *testing.T) {
	stmts := Statements()
	if len(stmts) == 0 {
		t.Fatal("expected schema statements")
	}
	want := []string{"credit_accounts", "templates", "generation_jobs", "credit_entries", "assets", "integration_tokens"}
	joined := strings.Join(stmts, "\n")
	for _, table := range want {
		if !strings.Contains(joined, "create table if not exists "+table) {
			t.Fatalf("schema missing table %s", table)
		}
	}
	for _, stmt := range stmts {
		if strings.HasSuffix(stmt, ";") {
			t.Fatalf("statement should be split without terminator: %q", stmt)
		}
	}
}
