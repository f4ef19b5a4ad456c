package aidiagd

import (
	"encoding/json"

	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/model"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// Notification is pushed by the server without a request.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeRefused        = -32001
)

const (
	MethodPublish = "diagnostics/publish"
	MethodNotify  = "window/notify"
)

type DocumentOpenParams struct {
	URI      string `json:"uri"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

type DocumentChangeParams struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

type DocumentSaveParams struct {
	URI  string  `json:"uri"`
	Text *string `json:"text,omitempty"`
}

type URIParams struct {
	URI string `json:"uri"`
}

type ToggleParams struct {
	Enabled *bool `json:"enabled,omitempty"`
}

type ToggleResult struct {
	Enabled bool `json:"enabled"`
}

type HistoryParams struct {
	URI   string `json:"uri,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type StatusResult struct {
	controller.Status
	Documents int    `json:"documents"`
	Version   string `json:"version"`

	// HistoryRuns counts the recorded runs when history is enabled.
	HistoryRuns int `json:"history_runs,omitempty"`
}

type PublishParams struct {
	URI         string             `json:"uri"`
	Namespace   string             `json:"namespace"`
	Diagnostics model.ParsedResult `json:"diagnostics"`
}

type NotifyParams struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}
