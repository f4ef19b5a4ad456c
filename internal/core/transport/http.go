package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTP posts requests in-process. Non-2xx responses are still returned as
// bodies so the service's own error envelope reaches the parser, the same
// way the external client reports them.
type HTTP struct {
	Client *http.Client
}

func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTP{Client: client}
}

func (t *HTTP) Send(req Request, done func(Result)) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := newCall(cancel)

	go func() {
		defer cancel()
		body, err := t.do(ctx, req)
		if err != nil {
			h.deliver(done, unavailable(err))
			return
		}
		h.deliver(done, Result{Body: body})
	}()
	return h
}

func (t *HTTP) do(ctx context.Context, req Request) ([]byte, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}
