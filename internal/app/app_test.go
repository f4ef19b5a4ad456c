package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidiagnos/internal/config"
	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/model"
)

func TestNewTransport_Selection(t *testing.T) {
	cfg := config.Defaults()
	cfg.CacheSize = 0

	tr, err := NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.Curl{}, tr)

	cfg.Transport = "http"
	tr, err = NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.HTTP{}, tr)

	cfg.Transport = "openai"
	tr, err = NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.OpenAI{}, tr)

	cfg.Transport = "carrier-pigeon"
	_, err = NewTransport(cfg, nil)
	assert.Error(t, err)
}

func TestNewTransport_Decorators(t *testing.T) {
	cfg := config.Defaults()
	cfg.CacheSize = 4
	cfg.RatePerMinute = 30

	tr, err := NewTransport(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &transport.Cached{}, tr)
}

type host struct{}

func (host) Document(model.DocumentKey) (model.Document, bool) { return model.Document{}, false }
func (host) Publish(model.DocumentKey, string, model.ParsedResult) {}
func (host) Clear(model.DocumentKey, string) {}
func (host) Notify(controller.Level, string) {}

func TestNewController_ValidatesConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Protocol = "xml"
	_, err := NewController(cfg, host{}, Deps{Transport: transport.NewFake()})
	assert.Error(t, err)

	cfg = config.Defaults()
	c, err := NewController(cfg, host{}, Deps{Transport: transport.NewFake()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.Equal(t, cfg.Model, c.Status().Model)
	assert.True(t, c.Status().Enabled)
}

func TestOpenHistory(t *testing.T) {
	cfg := config.Defaults()
	s, err := OpenHistory(cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.HistoryDB = t.TempDir() + "/h.db"
	s, err = OpenHistory(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, s.Close())
}
