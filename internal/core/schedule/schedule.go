// Package schedule owns the per-document analysis job lifecycle:
// Idle -> Debouncing -> Requesting -> Idle.
//
// All job state lives on one event-loop goroutine. Public methods, timer
// callbacks and transport completions are posted to that loop as tasks, so
// the per-key table is never touched concurrently. Every arm (debounce or
// trigger) bumps the key's generation; a task carrying an older generation
// is stale and does nothing.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aidiagnos/internal/core/parse"
	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/diag"
	"aidiagnos/internal/model"
)

const (
	DefaultDebounce = 1500 * time.Millisecond
	DefaultTimeout  = 30 * time.Second
)

var (
	ErrTimeout    = errors.New("request timed out")
	ErrCanceled   = errors.New("job canceled")
	ErrNoDocument = errors.New("document not available")
	ErrClosed     = errors.New("scheduler closed")
)

type State int

const (
	Idle State = iota
	Debouncing
	Requesting
)

func (s State) String() string {
	switch s {
	case Debouncing:
		return "debouncing"
	case Requesting:
		return "requesting"
	default:
		return "idle"
	}
}

type Counts struct {
	Timers   int `json:"timers"`
	InFlight int `json:"in_flight"`
}

// Documents reads the live text of a document.
type Documents interface {
	Document(key model.DocumentKey) (model.Document, bool)
}

type Builder interface {
	Build(doc model.Document) (transport.Request, error)
}

// Outcome is the single terminal action of a triggered job. Err is nil on
// success, in which case Result holds the findings resolved against the
// document text current at completion.
type Outcome struct {
	Key      model.DocumentKey
	JobID    string
	Started  time.Time
	Duration time.Duration
	Result   model.ParsedResult
	Stats    parse.Stats
	Err      error
}

// Listener callbacks run on the event loop. They must not block and must not
// call back into the Scheduler.
type Listener interface {
	Triggered(key model.DocumentKey, jobID string)
	Finished(o Outcome)
}

type Options struct {
	Debounce time.Duration
	Timeout  time.Duration
	Clock    Clock
	Logger   *slog.Logger
	Listener Listener
}

type job struct {
	gen      uint64
	debounce Timer
	inFlight transport.Handle
	watchdog Timer

	id      string
	started time.Time
	span    trace.Span
}

type Scheduler struct {
	docs     Documents
	builder  Builder
	tr       transport.Transport
	debounce time.Duration
	timeout  time.Duration
	clock    Clock
	log      *slog.Logger
	listener Listener
	tracer   trace.Tracer

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}

	// loop only
	jobs map[model.DocumentKey]*job

	viewMu sync.Mutex
	view   map[model.DocumentKey]State
}

func New(docs Documents, builder Builder, tr transport.Transport, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	s := &Scheduler{
		docs:     docs,
		builder:  builder,
		tr:       tr,
		debounce: opts.Debounce,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		log:      diag.OrDefault(opts.Logger),
		listener: opts.Listener,
		tracer:   diag.Tracer("schedule"),
		wake:     make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		jobs:     make(map[model.DocumentKey]*job),
		view:     make(map[model.DocumentKey]State),
	}
	go s.run()
	return s
}

func (s *Scheduler) Debounce() time.Duration { return s.debounce }

func (s *Scheduler) Timeout() time.Duration { return s.timeout }

// Schedule retires whatever is pending for key and arms a fresh debounce
// timer. When it returns exactly one timer is pending for key.
func (s *Scheduler) Schedule(key model.DocumentKey) error {
	return s.do(func() {
		j := s.slot(key)
		s.retire(key, j)
		gen := j.gen
		j.debounce = s.clock.AfterFunc(s.debounce, func() {
			s.post(func() { s.fire(key, gen) })
		})
		diag.JobsScheduled.WithLabelValues("debounce").Inc()
		s.sync(key)
	})
}

// Cancel retires the debounce timer, in-flight request and watchdog for key.
// It is a no-op when nothing is pending.
func (s *Scheduler) Cancel(key model.DocumentKey) error {
	err := s.do(func() {
		if j := s.jobs[key]; j != nil {
			s.retire(key, j)
			s.sync(key)
		}
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// ForceRun cancels pending work for key and triggers immediately.
func (s *Scheduler) ForceRun(key model.DocumentKey) error {
	return s.do(func() {
		j := s.slot(key)
		s.retire(key, j)
		diag.JobsScheduled.WithLabelValues("force").Inc()
		s.trigger(key, j)
		s.sync(key)
	})
}

// CancelAll cancels pending work for every key.
func (s *Scheduler) CancelAll() error {
	err := s.do(func() {
		for key, j := range s.jobs {
			s.retire(key, j)
			s.sync(key)
		}
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Forget cancels pending work for a closed document and drops its slot.
func (s *Scheduler) Forget(key model.DocumentKey) error {
	err := s.do(func() {
		if j := s.jobs[key]; j != nil {
			s.retire(key, j)
			delete(s.jobs, key)
			s.sync(key)
		}
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Flush waits until every task posted before it has run.
func (s *Scheduler) Flush() error {
	return s.do(func() {})
}

// Close retires every job and stops the loop. Later calls are no-ops.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.stopped
		return nil
	}
	s.queue = append(s.queue, func() {
		for key, j := range s.jobs {
			s.retire(key, j)
			delete(s.jobs, key)
			s.sync(key)
		}
	})
	s.closed = true
	s.mu.Unlock()
	s.signal()
	<-s.stopped
	return nil
}

func (s *Scheduler) State(key model.DocumentKey) State {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.view[key]
}

func (s *Scheduler) Active() Counts {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	var c Counts
	for _, st := range s.view {
		switch st {
		case Debouncing:
			c.Timers++
		case Requesting:
			c.InFlight++
		}
	}
	return c
}

func (s *Scheduler) run() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-s.wake
	}
}

func (s *Scheduler) post(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) do(fn func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	<-done
	return nil
}

func (s *Scheduler) slot(key model.DocumentKey) *job {
	j := s.jobs[key]
	if j == nil {
		j = &job{}
		s.jobs[key] = j
	}
	return j
}

// retire disarms everything for key and invalidates tasks already posted for
// the previous generation.
func (s *Scheduler) retire(key model.DocumentKey, j *job) {
	j.gen++
	if j.debounce != nil {
		j.debounce.Stop()
		j.debounce = nil
	}
	if j.inFlight == nil {
		return
	}
	h := j.inFlight
	s.settle(j)
	h.Cancel()
	s.finish(key, j, Outcome{Err: ErrCanceled})
}

// settle releases the in-flight handle and its watchdog together.
func (s *Scheduler) settle(j *job) {
	if j.watchdog != nil {
		j.watchdog.Stop()
		j.watchdog = nil
	}
	j.inFlight = nil
}

func (s *Scheduler) fire(key model.DocumentKey, gen uint64) {
	j := s.jobs[key]
	if j == nil || j.gen != gen || j.debounce == nil {
		return
	}
	j.debounce = nil
	s.trigger(key, j)
	s.sync(key)
}

// trigger snapshots the document, builds the request, arms the watchdog and
// sends. Nothing may be armed for key when it is called.
func (s *Scheduler) trigger(key model.DocumentKey, j *job) {
	j.gen++
	gen := j.gen
	j.id = uuid.NewString()
	j.started = s.clock.Now()

	doc, ok := s.docs.Document(key)
	if !ok {
		s.finish(key, j, Outcome{Err: ErrNoDocument})
		return
	}
	req, err := s.builder.Build(doc)
	if err != nil {
		s.finish(key, j, Outcome{Err: fmt.Errorf("build request: %w", err)})
		return
	}

	_, j.span = s.tracer.Start(context.Background(), "analyze",
		trace.WithAttributes(
			attribute.String("document.key", string(key)),
			attribute.String("document.language", doc.Language),
			attribute.String("job.id", j.id),
		),
	)
	s.log.Debug("job triggered",
		slog.String("key", string(key)),
		slog.String("job", j.id),
		slog.Int("bytes", len(req.Body)),
	)
	if s.listener != nil {
		s.listener.Triggered(key, j.id)
	}

	j.watchdog = s.clock.AfterFunc(s.timeout, func() {
		s.post(func() { s.expire(key, gen) })
	})
	j.inFlight = s.tr.Send(req, func(res transport.Result) {
		s.post(func() { s.complete(key, gen, res) })
	})
}

func (s *Scheduler) current(key model.DocumentKey, gen uint64) *job {
	j := s.jobs[key]
	if j == nil || j.gen != gen || j.inFlight == nil {
		return nil
	}
	return j
}

func (s *Scheduler) complete(key model.DocumentKey, gen uint64, res transport.Result) {
	j := s.current(key, gen)
	if j == nil {
		diag.StaleCompletions.Inc()
		s.log.Debug("stale completion discarded", slog.String("key", string(key)))
		return
	}
	s.settle(j)
	defer s.sync(key)

	if res.Err != nil {
		s.finish(key, j, Outcome{Err: res.Err})
		return
	}
	// Anchors are searched in the text as it is now, not as it was sent.
	var text string
	if doc, ok := s.docs.Document(key); ok {
		text = doc.Text
	}
	result, stats, err := parse.ParseWithStats(res.Body, text)
	s.finish(key, j, Outcome{Result: result, Stats: stats, Err: err})
}

func (s *Scheduler) expire(key model.DocumentKey, gen uint64) {
	j := s.current(key, gen)
	if j == nil {
		return
	}
	h := j.inFlight
	s.settle(j)
	h.Cancel()
	s.finish(key, j, Outcome{Err: fmt.Errorf("%w after %s", ErrTimeout, s.timeout)})
	s.sync(key)
}

func (s *Scheduler) finish(key model.DocumentKey, j *job, o Outcome) {
	o.Key = key
	o.JobID = j.id
	o.Started = j.started
	o.Duration = s.clock.Now().Sub(j.started)

	if j.span != nil {
		if o.Err != nil {
			j.span.RecordError(o.Err)
			j.span.SetStatus(codes.Error, o.Err.Error())
		} else {
			j.span.SetAttributes(
				attribute.Int("findings.total", o.Stats.Total),
				attribute.Int("findings.dropped", o.Stats.Dropped),
			)
		}
		j.span.End()
		j.span = nil
	}

	attrs := []any{
		slog.String("key", string(key)),
		slog.String("job", j.id),
		slog.Duration("elapsed", o.Duration),
	}
	if o.Err != nil {
		s.log.Debug("job finished", append(attrs, slog.String("error", o.Err.Error()))...)
	} else {
		s.log.Debug("job finished", append(attrs, slog.Int("findings", len(o.Result)))...)
	}
	if s.listener != nil {
		s.listener.Finished(o)
	}
}

func (s *Scheduler) sync(key model.DocumentKey) {
	st := Idle
	j := s.jobs[key]
	if j != nil {
		switch {
		case j.inFlight != nil:
			st = Requesting
		case j.debounce != nil:
			st = Debouncing
		}
	}
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if j == nil {
		delete(s.view, key)
		return
	}
	s.view[key] = st
}

// armed counts what is pending for key; the watchdog is counted with its
// request.
func (s *Scheduler) armed(key model.DocumentKey) int {
	j := s.jobs[key]
	if j == nil {
		return 0
	}
	n := 0
	if j.debounce != nil {
		n++
	}
	if j.inFlight != nil {
		n++
	}
	return n
}
