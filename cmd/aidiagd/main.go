package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"aidiagnos/internal/aidiagd"
	"aidiagnos/internal/app"
	"aidiagnos/internal/config"
	"aidiagnos/internal/diag"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:7338", "listen address (tcp)")
	stdio := flag.Bool("stdio", false, "serve a single session on stdin/stdout")
	configPath := flag.String("config", "", "config file (yaml)")
	metrics := flag.String("metrics", "", "serve prometheus metrics on this address")
	trace := flag.Bool("trace", false, "write trace spans to stderr")
	logLevel := flag.String("log-level", "", "debug|info|warn|error (overrides config)")
	flag.Parse()

	if err := run(*listen, *stdio, *configPath, *metrics, *trace, *logLevel); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			_, _ = fmt.Fprintf(os.Stderr, "listen address in use: %s\nTry: -listen 127.0.0.1:7339\n", *listen)
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(listen string, stdio bool, configPath, metricsAddr string, trace bool, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout carries the protocol in -stdio mode, so logs always go to stderr.
	logger, err := diag.NewLogger(os.Stderr, cfg.LogLevel, "text")
	if err != nil {
		return err
	}

	if trace {
		shutdown, err := diag.InstallStdoutTracer(os.Stderr, "aidiagd")
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	history, err := app.OpenHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	s, err := aidiagd.NewServer(aidiagd.Options{
		Listen:  listen,
		Config:  cfg,
		History: history,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", slog.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	if stdio {
		// Serve blocks on stdin; a signal ends the process without waiting for it.
		done := make(chan error, 1)
		go func() { done <- s.Serve(os.Stdin, os.Stdout) }()
		select {
		case err = <-done:
		case <-ctx.Done():
		}
		stop()
		if werr := g.Wait(); err == nil {
			err = werr
		}
		return err
	}

	g.Go(func() error {
		defer stop()
		return s.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		return s.Close()
	})

	return g.Wait()
}
