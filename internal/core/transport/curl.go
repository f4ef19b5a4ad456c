package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// Curl posts requests by spawning an external HTTP client. Method and headers
// go on the command line; the body is streamed on stdin so large documents do
// not hit argv limits.
type Curl struct {
	Path      string
	ExtraArgs []string
	Logger    *slog.Logger
}

func NewCurl(path string, logger *slog.Logger) *Curl {
	if path == "" {
		path = "curl"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Curl{Path: path, Logger: logger}
}

func (c *Curl) Args(req Request) []string {
	args := []string{"-sS", "-X", "POST", req.Endpoint}
	for _, h := range req.SortedHeaders() {
		args = append(args, "-H", h)
	}
	args = append(args, c.ExtraArgs...)
	args = append(args, "--data-binary", "@-")
	return args
}

func (c *Curl) Send(req Request, done func(Result)) Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := newCall(cancel)

	path := c.Path
	if path == "" {
		path = "curl"
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, path, c.Args(req)...)
	cmd.Stdin = bytes.NewReader(req.Body)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		go h.deliver(done, unavailable(err))
		return h
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		go h.deliver(done, unavailable(err))
		return h
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		logger.Warn("transport start failed", slog.String("command", path), slog.String("error", err.Error()))
		go h.deliver(done, unavailable(err))
		return h
	}
	logger.Debug("transport started",
		slog.String("command", path),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("body_bytes", len(req.Body)),
	)

	go func() {
		defer cancel()

		var out, errOut bytes.Buffer
		var g errgroup.Group
		g.Go(func() error { return drain(&out, stdout) })
		g.Go(func() error { return drain(&errOut, stderr) })
		_ = g.Wait()
		waitErr := cmd.Wait()

		if h.isCanceled() {
			logger.Debug("transport cancelled", slog.String("command", path))
			return
		}

		logger.Debug("transport finished",
			slog.String("command", path),
			slog.Duration("duration", time.Since(start)),
			slog.Int("stdout_bytes", out.Len()),
		)

		if waitErr != nil {
			code := -1
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				code = exitErr.ExitCode()
			}
			stderrText := errOut.String()
			if stderrText == "" {
				stderrText = waitErr.Error()
			}
			h.deliver(done, Result{Err: &ExitError{Code: code, Stderr: stderrText}})
			return
		}
		h.deliver(done, Result{Body: out.Bytes()})
	}()

	return h
}

// drain copies a child stream chunk by chunk until EOF.
func drain(dst *bytes.Buffer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			dst.Write(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
