package sqlite

import "testing"

func TestOpen_Pragmas(t *testing.T) {
	s := openTemp(t)

	fk, err := s.QueryPragma("foreign_keys")
	if err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != "1" {
		t.Fatalf("foreign_keys=%q, want 1", fk)
	}

	jm, _ := s.QueryPragma("journal_mode")
	if jm == "" {
		t.Fatalf("journal_mode empty")
	}
}

func TestQueryPragma_RejectsInjection(t *testing.T) {
	s := openTemp(t)
	if _, err := s.QueryPragma("journal_mode; DROP TABLE runs"); err == nil {
		t.Fatalf("expected invalid name error")
	}
	if _, err := s.QueryPragma(" "); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
