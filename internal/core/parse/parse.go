package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aidiagnos/internal/model"
)

var (
	ErrEnvelope = errors.New("invalid response envelope")
	ErrPayload  = errors.New("invalid diagnostics payload")
)

// ParseError reports which expectation about the response was violated.
type ParseError struct {
	Kind   error
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("%v: %s", e.Kind, e.Reason) }

func (e *ParseError) Unwrap() error { return e.Kind }

func envelopeErr(format string, args ...any) error {
	return &ParseError{Kind: ErrEnvelope, Reason: fmt.Sprintf(format, args...)}
}

func payloadErr(format string, args ...any) error {
	return &ParseError{Kind: ErrPayload, Reason: fmt.Sprintf(format, args...)}
}

type Stats struct {
	Total   int
	Dropped int
}

type envelope struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
	} `json:"error"`
}

type payload struct {
	Diagnostics *[]json.RawMessage `json:"diagnostics"`
}

// Parse decodes a raw service response and resolves its findings against
// documentText. A *ParseError is returned only when the response as a whole is
// unusable; individual findings that fail validation are dropped.
func Parse(rawBody []byte, documentText string) (model.ParsedResult, error) {
	out, _, err := ParseWithStats(rawBody, documentText)
	return out, err
}

func ParseWithStats(rawBody []byte, documentText string) (model.ParsedResult, Stats, error) {
	content, err := Content(rawBody)
	if err != nil {
		return nil, Stats{}, err
	}

	items, err := decodePayload(content)
	if err != nil {
		return nil, Stats{}, err
	}

	st := Stats{Total: len(items)}
	out := make(model.ParsedResult, 0, len(items))
	for _, raw := range items {
		f, ok := DecodeFinding(raw)
		if !ok {
			st.Dropped++
			continue
		}
		r, ok := Locate(f, documentText)
		if !ok {
			st.Dropped++
			continue
		}
		out = append(out, model.RangedFinding{
			Range:    r,
			Severity: f.Severity,
			Message:  f.Message,
			Code:     f.Code,
		})
	}
	return out, st, nil
}

// Content extracts choices[0].message.content from the outer envelope.
func Content(rawBody []byte) (string, error) {
	if len(bytes.TrimSpace(rawBody)) == 0 {
		return "", envelopeErr("empty response body")
	}
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return "", envelopeErr("decode: %v", err)
	}
	if env.Error != nil {
		msg := strings.TrimSpace(env.Error.Message)
		if msg == "" {
			msg = "unknown error"
		}
		return "", envelopeErr("service error: %s", msg)
	}
	if len(env.Choices) == 0 {
		return "", envelopeErr("missing choices")
	}
	m := env.Choices[0].Message
	if m == nil || m.Content == nil {
		return "", envelopeErr("missing message content")
	}
	return *m.Content, nil
}

func decodePayload(content string) ([]json.RawMessage, error) {
	content = stripFence(content)
	if content == "" {
		return nil, payloadErr("empty content")
	}
	var p payload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil, payloadErr("decode: %v", err)
	}
	if p.Diagnostics == nil {
		return nil, payloadErr("missing diagnostics array")
	}
	return *p.Diagnostics, nil
}

// stripFence removes a markdown code fence some models wrap around JSON
// despite being told not to.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
