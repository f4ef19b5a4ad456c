package transport

import "sync"

// Fake records requests and completes them only when told to. When Reply is
// set every request is completed with its result as soon as it is sent.
type Fake struct {
	Reply func(Request) Result

	mu    sync.Mutex
	calls []*FakeCall
}

type FakeCall struct {
	Request Request

	mu        sync.Mutex
	done      func(Result)
	canceled  bool
	completed bool
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) Send(req Request, done func(Result)) Handle {
	c := &FakeCall{Request: req, done: done}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	reply := f.Reply
	f.mu.Unlock()

	if reply != nil {
		res := reply(req)
		go c.Complete(res)
	}
	return c
}

func (f *Fake) Calls() []*FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Last returns the most recent call, or nil.
func (f *Fake) Last() *FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (c *FakeCall) Cancel() {
	c.mu.Lock()
	c.canceled = true
	c.mu.Unlock()
}

func (c *FakeCall) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Complete delivers res unless the call was cancelled or already completed.
// It reports whether the callback ran.
func (c *FakeCall) Complete(res Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canceled || c.completed {
		return false
	}
	c.completed = true
	if c.done != nil {
		c.done(res)
	}
	return true
}

func (c *FakeCall) Succeed(body string) bool { return c.Complete(Result{Body: []byte(body)}) }

func (c *FakeCall) Fail(err error) bool { return c.Complete(Result{Err: err}) }
