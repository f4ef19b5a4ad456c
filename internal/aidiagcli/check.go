package aidiagcli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"aidiagnos/internal/app"
	"aidiagnos/internal/core/controller"
	"aidiagnos/internal/core/schedule"
	"aidiagnos/internal/core/walk"
	"aidiagnos/internal/diag"
	"aidiagnos/internal/model"
)

// ErrFindings is returned by check when any error-severity finding or
// failed analysis was reported, so scripts can use the exit status.
var ErrFindings = errors.New("problems found")

func newCheckCommand() *cobra.Command {
	var (
		include []string
		exclude []string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "check <path>...",
		Short: "Analyze files once and print the findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			files, err := expandPaths(args, walk.Options{IncludeGlobs: include, ExcludeGlobs: exclude, ScanAll: all, SourceOnly: !all})
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files to check")
			}
			return runCheck(cmd, opts, files)
		},
	}
	cmd.Flags().StringSliceVarP(&include, "glob", "g", nil, "only check these files when a directory is given (can repeat)")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "skip these files (comma separated list: -x *.js,*.sql)")
	cmd.Flags().BoolVarP(&all, "all", "A", false, "include hidden and ignored files")
	return cmd
}

// expandPaths turns files and directories into absolute file paths.
func expandPaths(args []string, filter walk.Options) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			add(abs)
			continue
		}
		rels, err := walk.ListFiles(abs, filter)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			add(filepath.Join(abs, filepath.FromSlash(rel)))
		}
	}
	return out, nil
}

func runCheck(cmd *cobra.Command, opts *Options, files []string) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := diag.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, "text")
	if err != nil {
		return err
	}
	cfg.Progress = false

	cwd, _ := os.Getwd()
	host := newFileHost(cwd, rendererFor(opts), cmd.OutOrStdout(), cmd.ErrOrStderr())

	history, err := app.OpenHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	ctl, err := app.NewController(cfg, host, app.Deps{Transport: opts.transport, History: history, Logger: logger})
	if err != nil {
		return err
	}
	defer ctl.Close()

	keys := make([]model.DocumentKey, 0, len(files))
	for _, f := range files {
		key := model.DocumentKey(f)
		if err := ctl.Force(key); err != nil {
			if errors.Is(err, controller.ErrMissingCredential) {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", host.display(key), err)
			continue
		}
		keys = append(keys, key)
	}

	waitIdle(ctl, keys, 20*time.Millisecond)

	if host.Failures() > 0 || hasErrors(host) {
		return ErrFindings
	}
	return nil
}

// waitIdle polls until no key has work pending. The scheduler's watchdog
// bounds how long a request can stay in flight.
func waitIdle(ctl *controller.Controller, keys []model.DocumentKey, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		busy := false
		for _, k := range keys {
			if ctl.State(k) != schedule.Idle {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		<-t.C
	}
}

func hasErrors(h *fileHost) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.findings {
		for _, f := range r {
			if f.Severity == model.SeverityError {
				return true
			}
		}
	}
	return false
}
