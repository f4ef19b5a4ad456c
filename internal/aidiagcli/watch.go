package aidiagcli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aidiagnos/internal/app"
	"aidiagnos/internal/core/walk"
	"aidiagnos/internal/core/watch"
	"aidiagnos/internal/diag"
	"aidiagnos/internal/model"
)

func newWatchCommand() *cobra.Command {
	var filter walk.Options
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Analyze files under root each time they are saved",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil {
				return fmt.Errorf("options missing")
			}
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			filter.SourceOnly = !filter.ScanAll
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, opts, root, filter)
		},
	}
	cmd.Flags().StringSliceVarP(&filter.IncludeGlobs, "glob", "g", nil, "only watch these files (can repeat)")
	cmd.Flags().StringSliceVarP(&filter.ExcludeGlobs, "exclude", "x", nil, "ignore these files (comma separated list: -x *.js,*.sql)")
	cmd.Flags().BoolVarP(&filter.ScanAll, "all", "A", false, "include hidden and ignored files")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *Options, root string, filter walk.Options) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	logger, err := diag.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, "text")
	if err != nil {
		return err
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	host := newFileHost(rootAbs, rendererFor(opts), cmd.OutOrStdout(), cmd.ErrOrStderr())

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

	var skip []string
	if cfg.HistoryDB != "" {
		skip = append(skip, cfg.HistoryDB)
	}
	w, err := watch.New(rootAbs, watch.Options{
		Filter: filter,
		Skip:   skip,
		OnSave: func(rel, abs string) {
			if err := ctl.Saved(model.DocumentKey(abs)); err != nil {
				logger.Debug("save ignored", slog.String("path", rel), slog.String("error", err.Error()))
			}
		},
		OnRemove: func(rel, abs string) {
			_ = ctl.Closed(model.DocumentKey(abs))
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info("watching", slog.String("root", rootAbs))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return w.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return w.Close()
	})
	return g.Wait()
}
