// Package config loads aidiag settings from a YAML file, an optional .env
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint  = "https://api.openai.com/v1/chat/completions"
	DefaultModel     = "gpt-4o-mini"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"
	DefaultNamespace = "aidiag"
)

type Config struct {
	Endpoint      string        `yaml:"endpoint" validate:"required,url"`
	Model         string        `yaml:"model" validate:"required"`
	APIKey        string        `yaml:"api_key"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Temperature   float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Debounce      time.Duration `yaml:"debounce" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxLines      int           `yaml:"max_lines" validate:"gte=0"`
	Progress      bool          `yaml:"progress"`
	Protocol      string        `yaml:"protocol" validate:"oneof=anchor line"`
	Transport     string        `yaml:"transport" validate:"oneof=curl http openai"`
	CurlPath      string        `yaml:"curl_path"`
	CacheSize     int           `yaml:"cache_size" validate:"gte=0"`
	RatePerMinute int           `yaml:"rate_per_minute" validate:"gte=0"`
	HistoryDB     string        `yaml:"history_db"`
	Namespace     string        `yaml:"namespace" validate:"required"`
	LogLevel      string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

func Defaults() Config {
	return Config{
		Endpoint:    DefaultEndpoint,
		Model:       DefaultModel,
		APIKeyEnv:   DefaultAPIKeyEnv,
		Temperature: 0.1,
		Debounce:    1500 * time.Millisecond,
		Timeout:     30 * time.Second,
		MaxLines:    2000,
		Progress:    true,
		Protocol:    "anchor",
		Transport:   "curl",
		CurlPath:    "curl",
		CacheSize:   64,
		Namespace:   DefaultNamespace,
		LogLevel:    "info",
	}
}

// Load starts from Defaults, overlays the YAML file at path (if any), loads
// a .env file next to the working directory and resolves the credential from
// the environment when the file leaves it empty. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := LoadDotenv(".env"); err != nil {
		return cfg, err
	}
	cfg.ResolveCredential()
	return cfg, nil
}

// LoadDotenv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) ResolveCredential() {
	if strings.TrimSpace(c.APIKey) != "" {
		return
	}
	name := strings.TrimSpace(c.APIKeyEnv)
	if name == "" {
		name = DefaultAPIKeyEnv
	}
	c.APIKey = strings.TrimSpace(os.Getenv(name))
}

// HasCredential reports whether an API key is configured.
func (c Config) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
