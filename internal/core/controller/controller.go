// Package controller wires host document events and user commands to the
// scheduler and renders outcomes through the host's diagnostic sink.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aidiagnos/internal/core/schedule"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/diag"
	"aidiagnos/internal/model"
)

var (
	ErrMissingCredential = errors.New("missing API credential")
	ErrDocumentTooLarge  = errors.New("document too large")
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Documents = schedule.Documents

// Sink displays findings. Publish replaces whatever the namespace showed for
// key before.
type Sink interface {
	Publish(key model.DocumentKey, namespace string, result model.ParsedResult)
	Clear(key model.DocumentKey, namespace string)
}

// Notifier shows a message to the user. It is best-effort and must not block.
type Notifier interface {
	Notify(level Level, message string)
}

// Recorder persists run history.
type Recorder interface {
	Record(run model.Run) error
}

type Options struct {
	Namespace     string
	Model         string
	MaxLines      int
	Progress      bool
	HasCredential bool
	Disabled      bool

	Debounce time.Duration
	Timeout  time.Duration
	Clock    schedule.Clock

	Recorder Recorder
	Logger   *slog.Logger
}

type Status struct {
	Enabled      bool          `json:"enabled"`
	Model        string        `json:"model"`
	Debounce     time.Duration `json:"debounce"`
	Timeout      time.Duration `json:"timeout"`
	ActiveJobs   int           `json:"active_jobs"`
	ActiveTimers int           `json:"active_timers"`
}

type Controller struct {
	docs   Documents
	sink   Sink
	notify Notifier
	sched  *schedule.Scheduler
	opts   Options
	log    *slog.Logger

	mu               sync.Mutex
	enabled          bool
	warnedCredential bool

	records   chan model.Run
	recording sync.WaitGroup
	closeOnce sync.Once
}

func New(docs Documents, sink Sink, notify Notifier, tr transport.Transport, builder schedule.Builder, opts Options) *Controller {
	if opts.Namespace == "" {
		opts.Namespace = "aidiag"
	}
	c := &Controller{
		docs:    docs,
		sink:    sink,
		notify:  notify,
		opts:    opts,
		log:     diag.OrDefault(opts.Logger),
		enabled: !opts.Disabled,
	}
	c.sched = schedule.New(docs, builder, tr, schedule.Options{
		Debounce: opts.Debounce,
		Timeout:  opts.Timeout,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Listener: listener{c},
	})
	if opts.Recorder != nil {
		c.records = make(chan model.Run, 64)
		c.recording.Add(1)
		go c.drainRecords()
	}
	return c
}

func (c *Controller) Namespace() string { return c.opts.Namespace }

// Saved schedules a debounced analysis. It does nothing while disabled.
func (c *Controller) Saved(key model.DocumentKey) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.admit(key); err != nil {
		return err
	}
	return c.sched.Schedule(key)
}

// Closed drops all state for key and clears its findings.
func (c *Controller) Closed(key model.DocumentKey) error {
	if err := c.sched.Forget(key); err != nil {
		return err
	}
	c.sink.Clear(key, c.opts.Namespace)
	return nil
}

// Force runs an analysis now, even while disabled.
func (c *Controller) Force(key model.DocumentKey) error {
	if err := c.admit(key); err != nil {
		return err
	}
	return c.sched.ForceRun(key)
}

// Clear cancels pending work for key and removes its findings. Once it
// returns no result for earlier work can be published.
func (c *Controller) Clear(key model.DocumentKey) error {
	if err := c.sched.Cancel(key); err != nil {
		return err
	}
	c.sink.Clear(key, c.opts.Namespace)
	return nil
}

// Toggle flips analysis on or off and returns the new setting.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	c.enabled = !c.enabled
	enabled := c.enabled
	c.mu.Unlock()
	c.applyEnabled(enabled)
	return enabled
}

func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	c.applyEnabled(enabled)
}

// applyEnabled runs the side effects of a setting change outside c.mu.
func (c *Controller) applyEnabled(enabled bool) {
	if !enabled {
		_ = c.sched.CancelAll()
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.notify.Notify(LevelInfo, "aidiag "+state)
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Controller) Status() Status {
	n := c.sched.Active()
	return Status{
		Enabled:      c.Enabled(),
		Model:        c.opts.Model,
		Debounce:     c.sched.Debounce(),
		Timeout:      c.sched.Timeout(),
		ActiveJobs:   n.InFlight,
		ActiveTimers: n.Timers,
	}
}

func (c *Controller) State(key model.DocumentKey) schedule.State {
	return c.sched.State(key)
}

// Close stops the scheduler and waits for pending history writes.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.sched.Close()
		if c.records != nil {
			close(c.records)
			c.recording.Wait()
		}
	})
	return err
}

// admit refuses work the configuration or the document size rules out.
func (c *Controller) admit(key model.DocumentKey) error {
	if !c.opts.HasCredential {
		c.mu.Lock()
		first := !c.warnedCredential
		c.warnedCredential = true
		c.mu.Unlock()
		if first {
			c.notify.Notify(LevelWarn, "aidiag: no API key configured; analysis is off until one is set")
		}
		return ErrMissingCredential
	}
	doc, ok := c.docs.Document(key)
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrNoDocument, key)
	}
	if c.opts.MaxLines > 0 {
		if n := doc.LineCount(); n > c.opts.MaxLines {
			err := fmt.Errorf("%w: %d lines (limit %d)", ErrDocumentTooLarge, n, c.opts.MaxLines)
			c.notify.Notify(LevelWarn, "aidiag: "+err.Error())
			return err
		}
	}
	return nil
}

func (c *Controller) drainRecords() {
	defer c.recording.Done()
	for run := range c.records {
		if err := c.opts.Recorder.Record(run); err != nil {
			c.log.Warn("record run failed", slog.String("run", run.ID), slog.String("error", err.Error()))
		}
	}
}

// listener receives scheduler callbacks on the event loop.
type listener struct{ c *Controller }

func (l listener) Triggered(key model.DocumentKey, _ string) {
	if l.c.opts.Progress {
		l.c.notify.Notify(LevelInfo, fmt.Sprintf("aidiag: analyzing %s", key))
	}
}

func (l listener) Finished(o schedule.Outcome) {
	c := l.c
	code := Classify(o.Err)
	diag.JobOutcomes.WithLabelValues(string(code)).Inc()
	if code != CodeCancel {
		diag.RequestLatency.Observe(o.Duration.Seconds())
	}
	if o.Stats.Dropped > 0 {
		diag.FindingsDropped.Add(float64(o.Stats.Dropped))
	}

	switch {
	case o.Err == nil:
		for _, f := range o.Result {
			diag.FindingsPublished.WithLabelValues(string(f.Severity)).Inc()
		}
		for i := range o.Result {
			o.Result[i].Source = c.opts.Namespace
		}
		c.sink.Publish(o.Key, c.opts.Namespace, o.Result)
		if c.opts.Progress {
			c.notify.Notify(LevelInfo, fmt.Sprintf("aidiag: %d finding(s) for %s", len(o.Result), o.Key))
		}
	case code.Visible():
		c.log.Warn("analysis failed",
			slog.String("key", string(o.Key)),
			slog.String("class", string(code)),
			slog.String("error", o.Err.Error()),
		)
		c.notify.Notify(LevelError, "aidiag: "+o.Err.Error())
	}

	c.record(o, code)
}

func (c *Controller) record(o schedule.Outcome, code Code) {
	if c.records == nil || o.JobID == "" {
		return
	}
	run := model.Run{
		ID:       o.JobID,
		Key:      o.Key,
		Model:    c.opts.Model,
		Started:  o.Started,
		Duration: o.Duration,
		Outcome:  string(code),
		Total:    o.Stats.Total,
		Dropped:  o.Stats.Dropped,
		Findings: o.Result,
	}
	if o.Err != nil {
		run.Error = o.Err.Error()
	}
	select {
	case c.records <- run:
	default:
		c.log.Warn("history backlog full; run not recorded", slog.String("run", run.ID))
	}
}
