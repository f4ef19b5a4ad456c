// Package anchor turns a pair of verbatim snippets into an exact text range.
//
// The analysis service does not report coordinates we can trust, so it quotes
// the start and end of each region instead. Resolution always takes the first
// literal match; a snippet that occurs more than once resolves to its first
// occurrence.
package anchor

import (
	"errors"
	"strings"

	"aidiagnos/internal/model"
)

var (
	ErrStartAnchorNotFound = errors.New("start_anchor not found")
	ErrEndAnchorNotFound   = errors.New("end_anchor not found")
)

// Resolve locates startAnchor, then the first endAnchor at or after it, and
// returns the half-open range spanning both. text must use "\n" between lines.
func Resolve(text string, startAnchor string, endAnchor string) (model.Range, error) {
	if startAnchor == "" {
		return model.Range{}, ErrStartAnchorNotFound
	}
	start := strings.Index(text, startAnchor)
	if start < 0 {
		return model.Range{}, ErrStartAnchorNotFound
	}

	if endAnchor == "" {
		return model.Range{}, ErrEndAnchorNotFound
	}
	rel := strings.Index(text[start:], endAnchor)
	if rel < 0 {
		return model.Range{}, ErrEndAnchorNotFound
	}
	end := start + rel + len(endAnchor)

	sl, sc := Position(text, start)
	el, ec := Position(text, end)
	return model.Range{StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}, nil
}

// Position converts a byte offset into a zero-based line and byte column.
// Offsets outside text are clamped.
func Position(text string, offset int) (line int, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	prefix := text[:offset]
	line = strings.Count(prefix, "\n")
	col = offset - (strings.LastIndexByte(prefix, '\n') + 1)
	return line, col
}
