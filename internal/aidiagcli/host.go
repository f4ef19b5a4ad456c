package aidiagcli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/walk"
	"aidiagnos/internal/model"
)

// fileHost serves documents straight from disk, keyed by absolute path, and
// prints findings as they are published.
type fileHost struct {
	root   string
	render Renderer

	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	findings map[model.DocumentKey]model.ParsedResult
	failures int
}

func newFileHost(root string, render Renderer, out, errOut io.Writer) *fileHost {
	return &fileHost{
		root:     root,
		render:   render,
		out:      out,
		errOut:   errOut,
		findings: map[model.DocumentKey]model.ParsedResult{},
	}
}

func (h *fileHost) Document(key model.DocumentKey) (model.Document, bool) {
	b, err := os.ReadFile(string(key))
	if err != nil {
		return model.Document{}, false
	}
	return model.Document{Key: key, Language: walk.LanguageFor(string(key)), Text: string(b)}, true
}

// display shortens key relative to the root for output.
func (h *fileHost) display(key model.DocumentKey) string {
	p := string(key)
	if h.root != "" {
		if rel, err := filepath.Rel(h.root, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

func (h *fileHost) Publish(key model.DocumentKey, _ string, result model.ParsedResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.findings[key] = result
	_, _ = io.WriteString(h.out, h.render(h.display(key), result))
}

func (h *fileHost) Clear(key model.DocumentKey, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.findings, key)
}

func (h *fileHost) Notify(level controller.Level, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if level == controller.LevelError {
		h.failures++
	}
	_, _ = fmt.Fprintf(h.errOut, "%s: %s\n", level, message)
}

func (h *fileHost) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// Count returns the number of findings currently shown.
func (h *fileHost) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.findings {
		n += len(r)
	}
	return n
}
