// Package watch turns file system writes under a root into save events.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"aidiagnos/internal/core/walk"
	"aidiagnos/internal/diag"
)

type Watcher struct {
	rootAbs string
	skip    map[string]struct{}

	filter   *walk.Filter
	onSave   func(rel string, abs string)
	onRemove func(rel string, abs string)
	log      *slog.Logger

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}
}

type Options struct {
	Filter walk.Options
	// Skip lists files (absolute or root-relative) whose events are ignored,
	// along with their sqlite -wal/-shm/-journal siblings.
	Skip     []string
	OnSave   func(rel string, abs string)
	OnRemove func(rel string, abs string)
	Logger   *slog.Logger
}

func New(root string, opts Options) (*Watcher, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rootAbs = filepath.Clean(rootAbs)
	if strings.TrimSpace(rootAbs) == "" {
		return nil, fmt.Errorf("root is required")
	}
	if opts.OnSave == nil {
		return nil, fmt.Errorf("OnSave is required")
	}

	filter, err := walk.NewFilter(rootAbs, opts.Filter)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootAbs:  rootAbs,
		skip:     map[string]struct{}{},
		filter:   filter,
		onSave:   opts.OnSave,
		onRemove: opts.OnRemove,
		log:      diag.OrDefault(opts.Logger),
		watcher:  fsw,
		closed:   make(chan struct{}),
	}
	for _, p := range opts.Skip {
		w.addSkip(p)
	}

	if err := w.addExistingDirs(); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) Root() string {
	if w == nil {
		return ""
	}
	return w.rootAbs
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}

	w.closeOnce.Do(func() { close(w.closed) })

	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.watcher == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closed:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

func (w *Watcher) addSkip(p string) {
	p = strings.TrimSpace(p)
	if p == "" {
		return
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.rootAbs, p)
	}
	rel, ok := w.toRel(p)
	if !ok {
		return
	}
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		w.skip[rel+suffix] = struct{}{}
	}
}

func (w *Watcher) addExistingDirs() error {
	return filepath.WalkDir(w.rootAbs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p == w.rootAbs {
			return w.watcher.Add(p)
		}

		rel, err := filepath.Rel(w.rootAbs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !w.filter.ShouldInclude(rel, true) {
			return filepath.SkipDir
		}

		return w.watcher.Add(p)
	})
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, ok := w.toRel(ev.Name)
	if !ok {
		return
	}
	if _, skip := w.skip[rel]; skip {
		return
	}

	if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if err := w.addDirRecursive(ev.Name); err != nil {
				w.log.Warn("watch directory failed", slog.String("dir", rel), slog.String("error", err.Error()))
			}
			return
		}
	}

	if !w.filter.ShouldInclude(rel, false) {
		return
	}

	abs := filepath.Clean(ev.Name)
	switch {
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.log.Debug("file saved", slog.String("path", rel))
		w.onSave(rel, abs)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if w.onRemove != nil {
			w.onRemove(rel, abs)
		}
	}
}

func (w *Watcher) toRel(abs string) (string, bool) {
	if strings.TrimSpace(abs) == "" {
		return "", false
	}

	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(w.rootAbs, abs)
	if err != nil {
		return "", false
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	return rel, true
}

func (w *Watcher) addDirRecursive(absDir string) error {
	absDir = filepath.Clean(absDir)

	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, ok := w.toRel(p)
		if !ok {
			return nil
		}
		if !w.filter.ShouldInclude(rel, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}
