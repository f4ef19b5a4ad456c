package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(DefaultAPIKeyEnv, "sk-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel || cfg.Debounce != 1500*time.Millisecond || cfg.Protocol != "anchor" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.APIKey != "sk-env" {
		t.Fatalf("APIKey=%q, want from env", cfg.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MY_KEY", "sk-custom")
	p := filepath.Join(dir, "aidiag.yaml")
	data := "model: local-coder\ndebounce: 250ms\ntimeout: 10s\nprotocol: line\ntransport: http\napi_key_env: MY_KEY\nmax_lines: 50\n"
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "local-coder" || cfg.Debounce != 250*time.Millisecond || cfg.Timeout != 10*time.Second {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Protocol != "line" || cfg.Transport != "http" || cfg.MaxLines != 50 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.Endpoint != DefaultEndpoint {
		t.Fatalf("unset field lost its default: %q", cfg.Endpoint)
	}
	if cfg.APIKey != "sk-custom" {
		t.Fatalf("APIKey=%q", cfg.APIKey)
	}
}

func TestLoad_Dotenv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(DefaultAPIKeyEnv, "")
	os.Unsetenv(DefaultAPIKeyEnv)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(DefaultAPIKeyEnv+"=sk-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "sk-dotenv" {
		t.Fatalf("APIKey=%q, want from .env", cfg.APIKey)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("debounce: [nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Protocol = "xml"
	cfg.Timeout = 0
	cfg.Endpoint = "not a url"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"protocol", "timeout", "endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestHasCredential(t *testing.T) {
	cfg := Defaults()
	if cfg.HasCredential() {
		t.Fatalf("defaults should carry no credential")
	}
	cfg.APIKey = "  "
	if cfg.HasCredential() {
		t.Fatalf("blank key counted as credential")
	}
}
