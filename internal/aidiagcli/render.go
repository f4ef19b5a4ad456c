package aidiagcli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"aidiagnos/internal/model"
)

// Renderer formats the findings for one file.
type Renderer func(path string, result model.ParsedResult) string

func rendererFor(opts *Options) Renderer {
	switch {
	case opts.Jsonl:
		return RenderJSONL
	case opts.VimLines:
		return RenderVim
	default:
		return RenderDefault
	}
}

type jsonlFinding struct {
	Path string `json:"path"`
	model.RangedFinding
}

func RenderJSONL(path string, result model.ParsedResult) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, f := range result {
		_ = enc.Encode(jsonlFinding{Path: path, RangedFinding: f})
	}
	return b.String()
}

// RenderDefault prints 1-based positions.
func RenderDefault(path string, result model.ParsedResult) string {
	var b strings.Builder
	for _, f := range result {
		_, _ = fmt.Fprintf(&b, "%s:%d:%d: %s: %s\n", path, f.Range.StartLine+1, f.Range.StartCol+1, f.Severity, oneLine(f.Message))
	}
	return b.String()
}

// RenderVim matches the errorformat %f:%l:%c:%t: %m.
func RenderVim(path string, result model.ParsedResult) string {
	var b strings.Builder
	for _, f := range result {
		_, _ = fmt.Fprintf(&b, "%s:%d:%d:%s: %s\n", path, f.Range.StartLine+1, f.Range.StartCol+1, vimType(f.Severity), oneLine(f.Message))
	}
	return b.String()
}

func vimType(s model.Severity) string {
	switch s {
	case model.SeverityError:
		return "E"
	case model.SeverityWarning:
		return "W"
	case model.SeverityHint:
		return "N"
	default:
		return "I"
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func renderRuns(runs []model.Run, jsonl bool) string {
	var b strings.Builder
	if jsonl {
		enc := json.NewEncoder(&b)
		for _, r := range runs {
			_ = enc.Encode(r)
		}
		return b.String()
	}
	for _, r := range runs {
		_, _ = fmt.Fprintf(&b, "%s  %-9s  %3d finding(s)  %3d dropped  %8s  %s",
			r.Started.Local().Format("2006-01-02 15:04:05"), r.Outcome, r.Total, r.Dropped, r.Duration.Round(time.Millisecond), r.Key)
		if r.Error != "" {
			_, _ = fmt.Fprintf(&b, "  (%s)", oneLine(r.Error))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
