// Package aidiagd serves analysis sessions to editors over line-delimited
// JSON-RPC 2.0, on TCP or on stdin/stdout.
package aidiagd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"aidiagnos/internal/app"
	"aidiagnos/internal/config"
	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/schedule"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/diag"
	"aidiagnos/internal/model"
	"aidiagnos/internal/store/sqlite"
	"aidiagnos/internal/version"
)

type Options struct {
	Listen string
	Config config.Config

	// Transport and History are shared by every session. A nil Transport
	// is built from Config.
	Transport transport.Transport
	History   *sqlite.Store
	Clock     schedule.Clock
	Logger    *slog.Logger
}

type Server struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	conns     map[net.Conn]struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(opts Options) (*Server, error) {
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:7338"
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		tr, err := app.NewTransport(opts.Config, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Transport = tr
	}
	return &Server{
		opts:   opts,
		log:    diag.OrDefault(opts.Logger),
		conns:  map[net.Conn]struct{}{},
		closed: make(chan struct{}),
	}, nil
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run accepts TCP connections until Close.
func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}

	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		s.track(conn, true)
		go func() {
			defer s.track(conn, false)
			defer conn.Close()
			_ = s.Serve(conn, conn)
		}()
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// Serve runs one session over r/w until r is exhausted. It is used for each
// TCP connection and directly for -stdio.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	out := newLineWriter(w)
	sess := newSession(out, s.log)

	ctl, err := app.NewController(s.opts.Config, sess, app.Deps{
		Transport: s.opts.Transport,
		History:   s.opts.History,
		Clock:     s.opts.Clock,
		Logger:    sess.log,
	})
	if err != nil {
		return err
	}
	sess.ctl = ctl
	defer ctl.Close()

	sess.log.Debug("session started")
	br := bufio.NewReader(r)
	for {
		line, err := ReadOneLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) || s.isClosed() {
				return nil
			}
			return err
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = out.Write(Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &ErrorObject{Code: codeParseError, Message: "parse error"},
			})
			continue
		}

		if len(req.ID) == 0 {
			// Notification: no response.
			_ = s.dispatch(sess, req)
			continue
		}

		if err := out.Write(s.dispatch(sess, req)); err != nil {
			return err
		}
	}
}

func decode(req Request, p any) *ErrorObject {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, p); err != nil {
		return &ErrorObject{Code: codeInvalidParams, Message: "invalid params"}
	}
	return nil
}

func requireURI(uri string) *ErrorObject {
	if strings.TrimSpace(uri) == "" {
		return &ErrorObject{Code: codeInvalidParams, Message: "uri is required"}
	}
	return nil
}

// refusal maps controller errors onto RPC errors.
func refusal(err error) *ErrorObject {
	code := codeServerError
	if errors.Is(err, controller.ErrMissingCredential) || errors.Is(err, controller.ErrDocumentTooLarge) {
		code = codeRefused
	}
	return &ErrorObject{Code: code, Message: err.Error()}
}

func (s *Server) dispatch(sess *session, req Request) Response {
	resp := Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp.Error = &ErrorObject{Code: codeInvalidRequest, Message: "invalid jsonrpc version"}
		return resp
	}

	ctl := sess.ctl
	switch req.Method {
	case "ping":
		resp.Result = "pong"
	case "version":
		resp.Result = version.String()
	case "document.open":
		var p DocumentOpenParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		sess.open(p)
		resp.Result = true
	case "document.change":
		var p DocumentChangeParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		sess.setText(p.URI, p.Text)
		resp.Result = true
	case "document.save":
		var p DocumentSaveParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		if p.Text != nil {
			sess.setText(p.URI, *p.Text)
		}
		if err := ctl.Saved(model.DocumentKey(p.URI)); err != nil {
			resp.Error = refusal(err)
			return resp
		}
		resp.Result = ctl.State(model.DocumentKey(p.URI)).String()
	case "document.close":
		var p URIParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		key := model.DocumentKey(p.URI)
		if err := ctl.Closed(key); err != nil {
			resp.Error = refusal(err)
			return resp
		}
		resp.Result = sess.drop(key)
	case "analyze.force":
		var p URIParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		if err := ctl.Force(model.DocumentKey(p.URI)); err != nil {
			resp.Error = refusal(err)
			return resp
		}
		resp.Result = ctl.State(model.DocumentKey(p.URI)).String()
	case "diagnostics.clear":
		var p URIParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if resp.Error = requireURI(p.URI); resp.Error != nil {
			return resp
		}
		if err := ctl.Clear(model.DocumentKey(p.URI)); err != nil {
			resp.Error = refusal(err)
			return resp
		}
		resp.Result = true
	case "toggle":
		var p ToggleParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if p.Enabled == nil {
			resp.Result = ToggleResult{Enabled: ctl.Toggle()}
		} else {
			ctl.SetEnabled(*p.Enabled)
			resp.Result = ToggleResult{Enabled: *p.Enabled}
		}
	case "status":
		st := StatusResult{Status: ctl.Status(), Documents: sess.count(), Version: version.String()}
		if s.opts.History != nil {
			n, err := s.opts.History.CountRuns()
			if err != nil {
				resp.Error = &ErrorObject{Code: codeServerError, Message: err.Error()}
				return resp
			}
			st.HistoryRuns = n
		}
		resp.Result = st
	case "history":
		var p HistoryParams
		if resp.Error = decode(req, &p); resp.Error != nil {
			return resp
		}
		if s.opts.History == nil {
			resp.Error = &ErrorObject{Code: codeServerError, Message: "history is not enabled"}
			return resp
		}
		runs, err := s.opts.History.RecentRuns(model.DocumentKey(p.URI), p.Limit)
		if err != nil {
			resp.Error = &ErrorObject{Code: codeServerError, Message: err.Error()}
			return resp
		}
		if runs == nil {
			runs = []model.Run{}
		}
		resp.Result = runs
	default:
		resp.Error = &ErrorObject{Code: codeMethodNotFound, Message: "method not found"}
	}

	return resp
}
