package aidiagcli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aidiagnos/internal/config"
	"aidiagnos/internal/core/transport"
)

type Options struct {
	ConfigPath string
	Model      string
	Debounce   time.Duration
	Timeout    time.Duration
	MaxLines   int
	Protocol   string
	Transport  string
	HistoryDB  string
	LogLevel   string
	Jsonl      bool
	VimLines   bool

	// transport replaces the configured transport in tests.
	transport transport.Transport
	changed   map[string]bool
}

func (o *Options) Prepare() error {
	o.normalize()
	if o.Jsonl && o.VimLines {
		return fmt.Errorf("--jsonl and --vim-lines are mutually exclusive")
	}
	if o.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0")
	}
	if o.MaxLines < 0 {
		return fmt.Errorf("max lines must be >= 0")
	}
	return nil
}

func (o *Options) normalize() {
	o.Protocol = strings.ToLower(strings.TrimSpace(o.Protocol))
	o.Transport = strings.ToLower(strings.TrimSpace(o.Transport))
	o.LogLevel = strings.ToLower(strings.TrimSpace(o.LogLevel))
}

// Config loads the config file and applies the flags the user set
// explicitly, then validates the result.
func (o *Options) Config() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.changed["model"] {
		cfg.Model = o.Model
	}
	if o.changed["debounce"] {
		cfg.Debounce = o.Debounce
	}
	if o.changed["timeout"] {
		cfg.Timeout = o.Timeout
	}
	if o.changed["max-lines"] {
		cfg.MaxLines = o.MaxLines
	}
	if o.changed["protocol"] {
		cfg.Protocol = o.Protocol
	}
	if o.changed["transport"] {
		cfg.Transport = o.Transport
	}
	if o.changed["history-db"] {
		cfg.HistoryDB = o.HistoryDB
	}
	if o.changed["log-level"] {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, cfg.Validate()
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	v := root.Context().Value(optionsKey{})
	opts, _ := v.(*Options)
	return opts
}

var overridable = []string{"model", "debounce", "timeout", "max-lines", "protocol", "transport", "history-db", "log-level"}

func bindFlags(cmd *cobra.Command, opts *Options) {
	d := config.Defaults()
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "C", opts.ConfigPath, "config file (yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Model, "model", "m", d.Model, "model name")
	cmd.PersistentFlags().DurationVar(&opts.Debounce, "debounce", d.Debounce, "quiet period after a save")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", d.Timeout, "per request timeout")
	cmd.PersistentFlags().IntVar(&opts.MaxLines, "max-lines", d.MaxLines, "skip documents longer than this (0 = no limit)")
	cmd.PersistentFlags().StringVar(&opts.Protocol, "protocol", d.Protocol, "locator protocol: anchor|line")
	cmd.PersistentFlags().StringVar(&opts.Transport, "transport", d.Transport, "transport: curl|http|openai")
	cmd.PersistentFlags().StringVar(&opts.HistoryDB, "history-db", d.HistoryDB, "sqlite file for run history")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", d.LogLevel, "debug|info|warn|error")

	cmd.PersistentFlags().BoolVar(&opts.Jsonl, "jsonl", opts.Jsonl, "output as JSONL")
	cmd.PersistentFlags().BoolVarP(&opts.VimLines, "vim-lines", "L", opts.VimLines, "vim quickfix friendly lines")
}

// recordChanged notes which overridable flags were given on the command line.
func recordChanged(cmd *cobra.Command, opts *Options) {
	opts.changed = map[string]bool{}
	for _, name := range overridable {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			opts.changed[name] = true
		}
	}
}

func ExecuteForTest(cmd *cobra.Command) (string, Options, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	opts := optionsFrom(cmd)
	if opts == nil {
		return out.String(), Options{}, err
	}
	opts.normalize()

	return out.String(), *opts, err
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}
