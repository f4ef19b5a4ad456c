package aidiagcli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aidiagnos/internal/app"
	"aidiagnos/internal/version"
)

type statusReport struct {
	Version    string        `json:"version"`
	Endpoint   string        `json:"endpoint"`
	Model      string        `json:"model"`
	Credential bool          `json:"credential"`
	Protocol   string        `json:"protocol"`
	Transport  string        `json:"transport"`
	Debounce   time.Duration `json:"debounce"`
	Timeout    time.Duration `json:"timeout"`
	MaxLines   int           `json:"max_lines"`
	CacheSize  int           `json:"cache_size"`
	RateLimit  int           `json:"rate_per_minute"`
	HistoryDB  string        `json:"history_db,omitempty"`
	Runs       int           `json:"history_runs,omitempty"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			r := statusReport{
				Version:    version.String(),
				Endpoint:   cfg.Endpoint,
				Model:      cfg.Model,
				Credential: cfg.HasCredential(),
				Protocol:   cfg.Protocol,
				Transport:  cfg.Transport,
				Debounce:   cfg.Debounce,
				Timeout:    cfg.Timeout,
				MaxLines:   cfg.MaxLines,
				CacheSize:  cfg.CacheSize,
				RateLimit:  cfg.RatePerMinute,
				HistoryDB:  cfg.HistoryDB,
			}
			if cfg.HistoryDB != "" {
				st, err := app.OpenHistory(cfg)
				if err != nil {
					return err
				}
				r.Runs, err = st.CountRuns()
				_ = st.Close()
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if opts.Jsonl {
				return json.NewEncoder(out).Encode(r)
			}
			cred := "missing"
			if r.Credential {
				cred = "set"
			}
			_, _ = fmt.Fprintf(out, "version:    %s\n", r.Version)
			_, _ = fmt.Fprintf(out, "endpoint:   %s\n", r.Endpoint)
			_, _ = fmt.Fprintf(out, "model:      %s\n", r.Model)
			_, _ = fmt.Fprintf(out, "credential: %s\n", cred)
			_, _ = fmt.Fprintf(out, "protocol:   %s\n", r.Protocol)
			_, _ = fmt.Fprintf(out, "transport:  %s\n", r.Transport)
			_, _ = fmt.Fprintf(out, "debounce:   %s\n", r.Debounce)
			_, _ = fmt.Fprintf(out, "timeout:    %s\n", r.Timeout)
			_, _ = fmt.Fprintf(out, "max lines:  %d\n", r.MaxLines)
			if r.HistoryDB != "" {
				_, _ = fmt.Fprintf(out, "history:    %s (%d runs)\n", r.HistoryDB, r.Runs)
			}
			return nil
		},
	}
}
