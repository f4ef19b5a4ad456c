package controller

import (
	"errors"

	"aidiagnos/internal/core/parse"
	"aidiagnos/internal/core/schedule"
	"aidiagnos/internal/core/transport"
)

// Code is the coarse error class used in logs, metrics and run history.
type Code string

const (
	CodeOK        Code = "ok"
	CodeConfig    Code = "config"
	CodeSize      Code = "size"
	CodeTransport Code = "transport"
	CodeTimeout   Code = "timeout"
	CodeEnvelope  Code = "envelope"
	CodePayload   Code = "payload"
	CodeCancel    Code = "cancel"
	CodeUnknown   Code = "unknown"
)

func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrMissingCredential):
		return CodeConfig
	case errors.Is(err, ErrDocumentTooLarge):
		return CodeSize
	case errors.Is(err, schedule.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, schedule.ErrCanceled):
		return CodeCancel
	case errors.Is(err, transport.ErrUnavailable), errors.Is(err, transport.ErrExit):
		return CodeTransport
	case errors.Is(err, parse.ErrEnvelope):
		return CodeEnvelope
	case errors.Is(err, parse.ErrPayload):
		return CodePayload
	default:
		return CodeUnknown
	}
}

// Visible reports whether a failure of this class is shown to the user.
func (c Code) Visible() bool {
	switch c {
	case CodeTransport, CodeTimeout, CodeEnvelope, CodePayload, CodeUnknown:
		return true
	default:
		return false
	}
}
