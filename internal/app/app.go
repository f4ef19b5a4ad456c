// Package app assembles a controller from configuration. The daemon and the
// CLI share it.
package app

import (
	"fmt"
	"log/slog"

	"aidiagnos/internal/config"
	"aidiagnos/internal/core/cache"
	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/prompt"
	"aidiagnos/internal/core/schedule"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/store/sqlite"
)

// Host is everything the editor side provides.
type Host interface {
	controller.Documents
	controller.Sink
	controller.Notifier
}

// NewTransport builds the configured transport wrapped in the response cache
// and rate limiter when those are enabled.
func NewTransport(cfg config.Config, logger *slog.Logger) (transport.Transport, error) {
	var tr transport.Transport
	switch cfg.Transport {
	case "", "curl":
		tr = transport.NewCurl(cfg.CurlPath, logger)
	case "http":
		tr = transport.NewHTTP(nil)
	case "openai":
		tr = transport.NewOpenAI(cfg.Endpoint, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown transport: %q", cfg.Transport)
	}
	if cfg.RatePerMinute > 0 {
		tr = transport.NewLimited(tr, transport.PerMinute(cfg.RatePerMinute))
	}
	if cfg.CacheSize > 0 {
		rc, err := cache.NewResponseCache(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		tr = transport.NewCached(tr, rc)
	}
	return tr, nil
}

func NewBuilder(cfg config.Config) (prompt.Builder, error) {
	p, err := prompt.ParseProtocol(cfg.Protocol)
	if err != nil {
		return prompt.Builder{}, err
	}
	return prompt.Builder{
		Endpoint:    cfg.Endpoint,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Protocol:    p,
	}, nil
}

// OpenHistory opens the run history, or returns nil when none is configured.
func OpenHistory(cfg config.Config) (*sqlite.Store, error) {
	if cfg.HistoryDB == "" {
		return nil, nil
	}
	return sqlite.Open(cfg.HistoryDB)
}

type Deps struct {
	Transport transport.Transport
	History   *sqlite.Store
	Clock     schedule.Clock
	Logger    *slog.Logger
}

// NewController validates cfg and wires a controller to host. A nil
// Deps.Transport is built from cfg.
func NewController(cfg config.Config, host Host, deps Deps) (*controller.Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr := deps.Transport
	if tr == nil {
		var err error
		if tr, err = NewTransport(cfg, deps.Logger); err != nil {
			return nil, err
		}
	}
	b, err := NewBuilder(cfg)
	if err != nil {
		return nil, err
	}

	opts := controller.Options{
		Namespace:     cfg.Namespace,
		Model:         cfg.Model,
		MaxLines:      cfg.MaxLines,
		Progress:      cfg.Progress,
		HasCredential: cfg.HasCredential(),
		Debounce:      cfg.Debounce,
		Timeout:       cfg.Timeout,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
	}
	if deps.History != nil {
		opts.Recorder = deps.History
	}
	return controller.New(host, host, host, tr, b, opts), nil
}
