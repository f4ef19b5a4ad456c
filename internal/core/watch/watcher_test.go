package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"aidiagnos/internal/core/walk"
)

type events struct {
	mu      sync.Mutex
	saved   []string
	removed []string
}

func (e *events) save(rel, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved = append(e.saved, rel)
}

func (e *events) remove(rel, _ string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, rel)
}

func (e *events) has(list func(*events) []string, want string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range list(e) {
		if p == want {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within 5s")
}

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	w, err := New(root, opts)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
		<-done
	})
	return w
}

func TestNew_RequiresOnSave(t *testing.T) {
	if _, err := New(t.TempDir(), Options{}); err == nil {
		t.Fatalf("expected error without OnSave")
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	root := t.TempDir()
	ev := &events{}
	startWatcher(t, root, Options{OnSave: ev.save, OnRemove: ev.remove})

	p := filepath.Join(root, "main.lua")
	if err := os.WriteFile(p, []byte("print(1)\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return ev.has(func(e *events) []string { return e.saved }, "main.lua") })

	if err := os.Remove(p); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitFor(t, func() bool { return ev.has(func(e *events) []string { return e.removed }, "main.lua") })
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	ev := &events{}
	startWatcher(t, root, Options{OnSave: ev.save})

	sub := filepath.Join(root, "pkg")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "util.lua"), []byte("return {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return ev.has(func(e *events) []string { return e.saved }, "pkg/util.lua") })
}

func TestWatcher_SkipsFilteredAndSkipped(t *testing.T) {
	root := t.TempDir()
	ev := &events{}
	startWatcher(t, root, Options{
		OnSave: ev.save,
		Filter: walk.Options{ExcludeGlobs: []string{"*.log"}},
		Skip:   []string{"history.db"},
	})

	for _, name := range []string{"debug.log", "history.db", "history.db-wal", ".hidden.lua", "ok.lua"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	waitFor(t, func() bool { return ev.has(func(e *events) []string { return e.saved }, "ok.lua") })

	ev.mu.Lock()
	defer ev.mu.Unlock()
	for _, p := range ev.saved {
		if p != "ok.lua" {
			t.Fatalf("unexpected save event for %s", p)
		}
	}
}
