package aidiagd

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/walk"
	"aidiagnos/internal/model"
)

// session is one connected editor. It holds the editor's buffers and sends
// findings and messages back over the connection.
type session struct {
	id  string
	out *lineWriter
	log *slog.Logger

	mu   sync.RWMutex
	docs map[model.DocumentKey]model.Document

	ctl *controller.Controller
}

func newSession(out *lineWriter, logger *slog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:   id,
		out:  out,
		log:  logger.With(slog.String("session", id)),
		docs: map[model.DocumentKey]model.Document{},
	}
}

func (s *session) Document(key model.DocumentKey) (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[key]
	return d, ok
}

func (s *session) open(p DocumentOpenParams) {
	key := model.DocumentKey(p.URI)
	lang := strings.TrimSpace(p.Language)
	if lang == "" {
		lang = walk.LanguageFor(p.URI)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = model.Document{Key: key, Language: lang, Text: p.Text}
}

// setText replaces the buffer text, opening the document if needed.
func (s *session) setText(uri string, text string) {
	key := model.DocumentKey(uri)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	if !ok {
		d = model.Document{Key: key, Language: walk.LanguageFor(uri)}
	}
	d.Text = text
	s.docs[key] = d
}

func (s *session) drop(key model.DocumentKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[key]
	delete(s.docs, key)
	return ok
}

func (s *session) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *session) Publish(key model.DocumentKey, namespace string, result model.ParsedResult) {
	if result == nil {
		result = model.ParsedResult{}
	}
	s.push(MethodPublish, PublishParams{URI: string(key), Namespace: namespace, Diagnostics: result})
}

func (s *session) Clear(key model.DocumentKey, namespace string) {
	s.push(MethodPublish, PublishParams{URI: string(key), Namespace: namespace, Diagnostics: model.ParsedResult{}})
}

func (s *session) Notify(level controller.Level, message string) {
	s.push(MethodNotify, NotifyParams{Level: string(level), Message: message})
}

func (s *session) push(method string, params any) {
	if err := s.out.Write(Notification{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		s.log.Debug("push failed", slog.String("method", method), slog.String("error", err.Error()))
	}
}
