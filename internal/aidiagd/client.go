package aidiagd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"aidiagnos/internal/model"
)

type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message) }

// Client speaks to a daemon over TCP. It is not safe for concurrent use.
// Notifications that arrive while a call waits for its response are queued
// and handed out by WaitNotification.
type Client struct {
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	nextID int64

	pending []Pushed
}

// Pushed is a server notification as received by the client.
type Pushed struct {
	Method string
	Params json.RawMessage
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type rawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func (c *Client) readMessage() (rawMessage, error) {
	var msg rawMessage
	line, err := ReadOneLine(c.r)
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(line, &msg)
	return msg, err
}

func (c *Client) call(method string, params any, out any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("client is nil")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	req := Request{JSONRPC: "2.0", Method: method, ID: json.RawMessage(fmt.Sprintf("%d", id))}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}

	if err := WriteOneLine(c.w, req); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	for {
		msg, err := c.readMessage()
		if err != nil {
			return err
		}
		if msg.Method != "" && len(msg.ID) == 0 {
			c.pending = append(c.pending, Pushed{Method: msg.Method, Params: msg.Params})
			continue
		}
		if msg.Error != nil {
			return &RPCError{Code: msg.Error.Code, Message: msg.Error.Message}
		}
		if out == nil || len(msg.Result) == 0 {
			return nil
		}
		return json.Unmarshal(msg.Result, out)
	}
}

// WaitNotification returns the next pushed notification with the given
// method, discarding others, or an error once timeout passes.
func (c *Client) WaitNotification(method string, timeout time.Duration) (Pushed, error) {
	for len(c.pending) > 0 {
		p := c.pending[0]
		c.pending = c.pending[1:]
		if p.Method == method {
			return p, nil
		}
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Pushed{}, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msg, err := c.readMessage()
		if err != nil {
			return Pushed{}, err
		}
		if msg.Method == method && len(msg.ID) == 0 {
			return Pushed{Method: msg.Method, Params: msg.Params}, nil
		}
	}
}

// WaitPublish waits for findings on uri.
func (c *Client) WaitPublish(uri string, timeout time.Duration) (PublishParams, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return PublishParams{}, fmt.Errorf("no findings for %s within %s", uri, timeout)
		}
		p, err := c.WaitNotification(MethodPublish, left)
		if err != nil {
			return PublishParams{}, err
		}
		var out PublishParams
		if err := json.Unmarshal(p.Params, &out); err != nil {
			return PublishParams{}, err
		}
		if out.URI == uri {
			return out, nil
		}
	}
}

func (c *Client) Ping() error {
	var out string
	if err := c.call("ping", nil, &out); err != nil {
		return err
	}
	if out != "pong" {
		return fmt.Errorf("unexpected ping result: %q", out)
	}
	return nil
}

func (c *Client) Version() (string, error) {
	var out string
	if err := c.call("version", nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) Open(p DocumentOpenParams) error {
	return c.call("document.open", p, nil)
}

func (c *Client) Change(p DocumentChangeParams) error {
	return c.call("document.change", p, nil)
}

// Save reports the document's scheduler state after the save.
func (c *Client) Save(p DocumentSaveParams) (string, error) {
	var out string
	if err := c.call("document.save", p, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) CloseDocument(uri string) error {
	return c.call("document.close", URIParams{URI: uri}, nil)
}

func (c *Client) Force(uri string) (string, error) {
	var out string
	if err := c.call("analyze.force", URIParams{URI: uri}, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) ClearDiagnostics(uri string) error {
	return c.call("diagnostics.clear", URIParams{URI: uri}, nil)
}

// Toggle flips analysis on or off, or sets it when enabled is non-nil.
func (c *Client) Toggle(enabled *bool) (bool, error) {
	var out ToggleResult
	if err := c.call("toggle", ToggleParams{Enabled: enabled}, &out); err != nil {
		return false, err
	}
	return out.Enabled, nil
}

func (c *Client) Status() (StatusResult, error) {
	var out StatusResult
	if err := c.call("status", nil, &out); err != nil {
		return StatusResult{}, err
	}
	return out, nil
}

func (c *Client) History(p HistoryParams) ([]model.Run, error) {
	var out []model.Run
	if err := c.call("history", p, &out); err != nil {
		return nil, err
	}
	return out, nil
}
