package model

import "testing"

func TestParseSeverity_DefaultsToInfo(t *testing.T) {
	cases := map[string]Severity{
		"error":    SeverityError,
		" Warning": SeverityWarning,
		"HINT":     SeverityHint,
		"info":     SeverityInfo,
		"critical": SeverityInfo,
		"":         SeverityInfo,
	}
	for in, want := range cases {
		if got := ParseSeverity(in); got != want {
			t.Fatalf("ParseSeverity(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDocumentLineCount(t *testing.T) {
	d := NewDocument("a", "go", []string{"a", "b", "c"})
	if d.Text != "a\nb\nc" {
		t.Fatalf("text=%q", d.Text)
	}
	if d.LineCount() != 3 {
		t.Fatalf("lines=%d", d.LineCount())
	}
	if (Document{Text: "x\n"}).LineCount() != 1 {
		t.Fatal("trailing newline should not count as a line")
	}
	if (Document{}).LineCount() != 0 {
		t.Fatal("empty document has no lines")
	}
}
