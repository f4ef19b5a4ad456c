package aidiagcli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"aidiagnos/internal/app"
	"aidiagnos/internal/model"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit    int
		findings bool
	)
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "List recent analysis runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("no history database configured (set history_db or --history-db)")
			}
			st, err := app.OpenHistory(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var key model.DocumentKey
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				key = model.DocumentKey(abs)
			}
			runs, err := st.RecentRuns(key, limit)
			if err != nil {
				return err
			}
			if findings {
				for i := range runs {
					if runs[i].Findings, err = st.Findings(runs[i].ID); err != nil {
						return err
					}
				}
			}

			out := cmd.OutOrStdout()
			if opts.Jsonl {
				_, _ = fmt.Fprint(out, renderRuns(runs, true))
				return nil
			}
			_, _ = fmt.Fprint(out, renderRuns(runs, false))
			if findings {
				render := rendererFor(opts)
				for _, r := range runs {
					_, _ = fmt.Fprint(out, render(string(r.Key), r.Findings))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVarP(&findings, "findings", "f", false, "include the findings of each run")
	return cmd
}
