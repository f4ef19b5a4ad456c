package sqlite

import (
	"testing"
	"time"

	"aidiagnos/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleFindings() model.ParsedResult {
	return model.ParsedResult{
		{Range: model.Range{StartLine: 1, StartCol: 0, EndLine: 1, EndCol: 8}, Severity: model.SeverityWarning, Message: "y is undefined", Code: "undef", Source: "aidiag"},
		{Range: model.Range{StartLine: 0, StartCol: 6, EndLine: 0, EndCol: 7}, Severity: model.SeverityHint, Message: "unused"},
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	s := openTemp(t)
	started := time.UnixMilli(1_700_000_000_123)

	run := model.Run{
		ID:       "run-1",
		Key:      "file:///a.lua",
		Model:    "gpt-test",
		Started:  started,
		Duration: 1500 * time.Millisecond,
		Outcome:  "ok",
		Total:    3,
		Dropped:  1,
		Findings: sampleFindings(),
	}
	if err := s.Record(run); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := s.RecentRuns("file:///a.lua", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs=%d, want 1", len(runs))
	}
	got := runs[0]
	if got.ID != "run-1" || got.Model != "gpt-test" || got.Outcome != "ok" || got.Total != 3 || got.Dropped != 1 {
		t.Fatalf("run=%+v", got)
	}
	if !got.Started.Equal(started) || got.Duration != 1500*time.Millisecond {
		t.Fatalf("times: started=%v duration=%v", got.Started, got.Duration)
	}

	fs, err := s.Findings("run-1")
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	want := sampleFindings()
	if len(fs) != len(want) {
		t.Fatalf("findings=%d, want %d", len(fs), len(want))
	}
	for i := range want {
		if fs[i] != want[i] {
			t.Fatalf("finding[%d]=%+v, want %+v", i, fs[i], want[i])
		}
	}
}

func TestRecord_AssignsID(t *testing.T) {
	s := openTemp(t)
	if err := s.Record(model.Run{Key: "k", Started: time.Now(), Outcome: "timeout", Error: "request timed out"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	runs, err := s.RecentRuns("", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 || runs[0].ID == "" || runs[0].Error != "request timed out" {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestRecentRuns_NewestFirstAndFiltered(t *testing.T) {
	s := openTemp(t)
	base := time.UnixMilli(1_700_000_000_000)
	for i, key := range []model.DocumentKey{"a", "b", "a", "a"} {
		run := model.Run{ID: string(rune('0' + i)), Key: key, Started: base.Add(time.Duration(i) * time.Second), Outcome: "ok"}
		if err := s.Record(run); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	runs, err := s.RecentRuns("a", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "3" || runs[1].ID != "2" {
		t.Fatalf("runs=%+v", runs)
	}

	all, err := s.RecentRuns("", 10)
	if err != nil {
		t.Fatalf("recent all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("all=%d, want 4", len(all))
	}
	n, err := s.CountRuns()
	if err != nil || n != 4 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestRecord_SameIDReplacesFindings(t *testing.T) {
	s := openTemp(t)
	run := model.Run{ID: "r", Key: "k", Started: time.Now(), Outcome: "ok", Findings: sampleFindings()}
	if err := s.Record(run); err != nil {
		t.Fatalf("record: %v", err)
	}
	run.Findings = sampleFindings()[:1]
	run.Total = 1
	if err := s.Record(run); err != nil {
		t.Fatalf("record again: %v", err)
	}
	fs, err := s.Findings("r")
	if err != nil {
		t.Fatalf("findings: %v", err)
	}
	if len(fs) != 1 || fs[0].Message != "y is undefined" {
		t.Fatalf("findings=%+v", fs)
	}
	n, err := s.CountRuns()
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestRecord_RequiresKey(t *testing.T) {
	s := openTemp(t)
	if err := s.Record(model.Run{ID: "x"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
	n, err := s.CountRuns()
	if err != nil || n != 0 {
		t.Fatalf("count=%d err=%v, want nothing stored", n, err)
	}
}

func TestClosedStore(t *testing.T) {
	var s *Store
	if err := s.Record(model.Run{}); err == nil {
		t.Fatalf("expected error on nil store")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}
