// Package transport sends one analysis request and reports a single outcome.
//
// Every implementation honours the same contract: Send never blocks the
// caller, done is invoked exactly once per Send unless the handle is
// cancelled first, and after Cancel returns done is never invoked. done runs
// on a transport goroutine and must not block.
package transport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnavailable means the request could not be started at all.
	ErrUnavailable = errors.New("transport unavailable")
	// ErrExit means the external client ran but exited non-zero.
	ErrExit = errors.New("transport failed")
)

type Request struct {
	Endpoint string
	Headers  map[string]string
	Body     []byte
}

// SortedHeaders returns "Key: value" pairs in a stable order.
func (r Request) SortedHeaders() []string {
	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+r.Headers[k])
	}
	return out
}

// Result is either a response body or an error, never both.
type Result struct {
	Body []byte
	Err  error
}

type Handle interface {
	Cancel()
}

type Transport interface {
	Send(req Request, done func(Result)) Handle
}

// ExitError carries what the external client wrote to stderr.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("%v: %s", ErrExit, msg)
}

func (e *ExitError) Unwrap() error { return ErrExit }

// call is the handle shared by the implementations in this package.
type call struct {
	mu       sync.Mutex
	canceled bool
	finished bool
	cancel   func()
}

func newCall(cancel func()) *call {
	return &call{cancel: cancel}
}

func (c *call) Cancel() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.canceled || c.finished {
		c.mu.Unlock()
		return
	}
	c.canceled = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *call) isCanceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// deliver invokes done at most once, and never after Cancel.
func (c *call) deliver(done func(Result), res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canceled || c.finished {
		return
	}
	c.finished = true
	if done != nil {
		done(res)
	}
}

func unavailable(err error) Result {
	return Result{Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}
