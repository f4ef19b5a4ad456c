package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI sends the request through the go-openai client and re-encodes the
// typed response into the wire envelope, so the parser sees the same bytes
// the other transports deliver.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(endpoint string, apiKey string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if base := BaseURL(endpoint); base != "" {
		cfg.BaseURL = base
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

// BaseURL strips the chat completions path from a full endpoint URL.
func BaseURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(endpoint, "/chat/completions")
}

func (t *OpenAI) Send(req Request, done func(Result)) Handle {
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

func (t *OpenAI) do(ctx context.Context, req Request) ([]byte, error) {
	var creq openai.ChatCompletionRequest
	if err := json.Unmarshal(req.Body, &creq); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	resp, err := t.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return json.Marshal(map[string]any{
				"error": map[string]any{"message": apiErr.Message, "type": apiErr.Type},
			})
		}
		return nil, err
	}
	return json.Marshal(resp)
}
