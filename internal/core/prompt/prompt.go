// Package prompt turns a document snapshot into the outbound chat
// completions request.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/model"
)

type Protocol string

const (
	ProtocolAnchor Protocol = "anchor"
	ProtocolLine   Protocol = "line"
)

func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProtocolAnchor:
		return ProtocolAnchor, nil
	case ProtocolLine:
		return ProtocolLine, nil
	default:
		return "", fmt.Errorf("unknown protocol: %q", s)
	}
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/*.tmpl"))

type Builder struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	Protocol    Protocol
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type body struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Render returns the prompt text for doc.
func (b Builder) Render(doc model.Document) (string, error) {
	p := b.Protocol
	if p == "" {
		p = ProtocolAnchor
	}
	tmpl := templates.Lookup(string(p) + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("unknown protocol: %q", p)
	}
	lang := strings.TrimSpace(doc.Language)
	if lang == "" {
		lang = "text"
	}
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct {
		Language string
		Text     string
		Lines    []string
	}{
		Language: lang,
		Text:     doc.Text,
		Lines:    strings.Split(doc.Text, "\n"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (b Builder) Build(doc model.Document) (transport.Request, error) {
	if strings.TrimSpace(b.Endpoint) == "" {
		return transport.Request{}, errors.New("endpoint is empty")
	}
	content, err := b.Render(doc)
	if err != nil {
		return transport.Request{}, err
	}
	raw, err := json.Marshal(body{
		Model:       b.Model,
		Messages:    []message{{Role: "user", Content: content}},
		Temperature: b.Temperature,
	})
	if err != nil {
		return transport.Request{}, err
	}
	return transport.Request{
		Endpoint: b.Endpoint,
		Headers: map[string]string{
			"Authorization": "Bearer " + b.APIKey,
			"Content-Type":  "application/json",
		},
		Body: raw,
	}, nil
}
