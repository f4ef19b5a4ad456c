package model

import (
	"strings"
	"time"
)

// DocumentKey names one live document (a URI or an absolute path).
type DocumentKey string

type Document struct {
	Key      DocumentKey `json:"key"`
	Language string      `json:"language"`
	Text     string      `json:"text"`
}

// NewDocument joins lines with a single newline, the same separator the
// anchor resolver assumes when it converts offsets back to positions.
func NewDocument(key DocumentKey, language string, lines []string) Document {
	return Document{Key: key, Language: language, Text: strings.Join(lines, "\n")}
}

func (d Document) LineCount() int {
	if d.Text == "" {
		return 0
	}
	n := strings.Count(d.Text, "\n") + 1
	if strings.HasSuffix(d.Text, "\n") {
		n--
	}
	return n
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// ParseSeverity maps the service vocabulary onto Severity. Anything outside
// error|warning|info|hint becomes info.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError
	case SeverityWarning:
		return SeverityWarning
	case SeverityHint:
		return SeverityHint
	default:
		return SeverityInfo
	}
}

// LSP returns the DiagnosticSeverity number used by editors.
func (s Severity) LSP() int {
	switch s {
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityHint:
		return 4
	default:
		return 3
	}
}

// Range is zero-based; EndCol is exclusive.
type Range struct {
	StartLine int `json:"lnum"`
	StartCol  int `json:"col"`
	EndLine   int `json:"end_lnum"`
	EndCol    int `json:"end_col"`
}

type AnchorLocator struct {
	Start string
	End   string
}

// LineLocator carries the 1-based coordinates reported by the service.
type LineLocator struct {
	Line   int
	Column int // 0 when absent
}

// Finding is one reported issue before range resolution. Exactly one of
// Anchor and Line is set.
type Finding struct {
	Severity Severity
	Message  string
	Code     string
	Anchor   *AnchorLocator
	Line     *LineLocator
}

type RangedFinding struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Code     string   `json:"code,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// ParsedResult keeps the order findings had in the response.
type ParsedResult []RangedFinding

// Run is the history record of one triggered analysis.
type Run struct {
	ID       string        `json:"id"`
	Key      DocumentKey   `json:"key"`
	Model    string        `json:"model"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Total    int           `json:"total"`
	Dropped  int           `json:"dropped"`
	Findings ParsedResult  `json:"findings,omitempty"`
}
