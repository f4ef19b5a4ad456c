package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"aidiagnos/internal/core/anchor"
	"aidiagnos/internal/model"
)

// rawFinding keeps every field undecoded so the variant can be chosen by
// which fields are present with the right JSON type.
type rawFinding struct {
	Severity    json.RawMessage `json:"severity"`
	Message     json.RawMessage `json:"message"`
	Code        json.RawMessage `json:"code"`
	StartAnchor json.RawMessage `json:"start_anchor"`
	EndAnchor   json.RawMessage `json:"end_anchor"`
	Line        json.RawMessage `json:"line"`
	Column      json.RawMessage `json:"column"`
}

// DecodeFinding validates one diagnostics element. Elements carrying string
// start_anchor and end_anchor decode to the anchor-pair variant; otherwise a
// numeric line selects the direct-locator variant. Anything else is rejected.
func DecodeFinding(raw json.RawMessage) (model.Finding, bool) {
	var rf rawFinding
	if err := json.Unmarshal(raw, &rf); err != nil {
		return model.Finding{}, false
	}

	sev, _ := asString(rf.Severity)
	msg, _ := asString(rf.Message)
	f := model.Finding{
		Severity: model.ParseSeverity(sev),
		Message:  strings.TrimSpace(msg),
		Code:     asCode(rf.Code),
	}

	start, okStart := asString(rf.StartAnchor)
	end, okEnd := asString(rf.EndAnchor)
	if okStart && okEnd {
		f.Anchor = &model.AnchorLocator{Start: start, End: end}
		return f, true
	}

	line, ok := asNumber(rf.Line)
	if !ok {
		return model.Finding{}, false
	}
	loc := &model.LineLocator{Line: int(line)}
	if present(rf.Column) {
		col, ok := asNumber(rf.Column)
		if !ok {
			return model.Finding{}, false
		}
		loc.Column = int(col)
	}
	f.Line = loc
	return f, true
}

// Locate resolves a finding to a range within text.
func Locate(f model.Finding, text string) (model.Range, bool) {
	switch {
	case f.Anchor != nil:
		r, err := anchor.Resolve(text, f.Anchor.Start, f.Anchor.End)
		if err != nil {
			return model.Range{}, false
		}
		return r, true
	case f.Line != nil:
		return locateLine(*f.Line, text)
	default:
		return model.Range{}, false
	}
}

// locateLine maps 1-based service coordinates onto the current text. The
// range runs from the column (or line start) to the end of that line.
func locateLine(loc model.LineLocator, text string) (model.Range, bool) {
	lines := strings.Split(text, "\n")
	idx := loc.Line - 1
	if idx < 0 || idx >= len(lines) {
		return model.Range{}, false
	}
	width := len(lines[idx])
	col := loc.Column - 1
	if col < 0 {
		col = 0
	}
	if col > width {
		col = width
	}
	return model.Range{StartLine: idx, StartCol: col, EndLine: idx, EndCol: width}, true
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func asString(raw json.RawMessage) (string, bool) {
	if !present(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func asNumber(raw json.RawMessage) (float64, bool) {
	if !present(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func asCode(raw json.RawMessage) string {
	if s, ok := asString(raw); ok {
		return strings.TrimSpace(s)
	}
	if n, ok := asNumber(raw); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}
