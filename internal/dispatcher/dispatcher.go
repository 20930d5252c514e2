package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrQueueFull is returned by Dispatch when a handler's queue has no room.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrUnknownKind is returned by Dispatch for a kind without a handler.
	ErrUnknownKind = errors.New("unknown job kind")
)

// Job is a unit of background work, such as fetching the overlay for one key.
type Job struct {
	Kind      string
	Key       string
	Timestamp time.Time
}

// HandlerFunc processes a job.
type HandlerFunc func(context.Context, Job) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	workers    int
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Workers sets how many goroutines drain a buffered handler's queue.
func Workers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type route struct {
	handler HandlerFunc
	buffer  chan Job
	attr    attribute.KeyValue
}

// Dispatcher routes jobs to registered handlers, running buffered handlers
// on a fixed pool of worker goroutines.
type Dispatcher struct {
	logger Logger
	ctx    context.Context
	cancel context.CancelFunc

	metrics instruments

	mu      sync.RWMutex
	routes  map[string]*route
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		routes: make(map[string]*route),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	m, in, err := newInstruments()
	if err != nil {
		return nil, err
	}
	d.metrics = in

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for _, r := range d.routes {
				if r.buffer != nil {
					o.ObserveInt64(in.queueSize, int64(len(r.buffer)), metric.WithAttributes(r.attr))
				}
			}
			return nil
		},
		in.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given job kind with optional configuration.
func (d *Dispatcher) Register(kind string, h HandlerFunc, opts ...Option) {
	cfg := &config{workers: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	if cfg.logged {
		handler = d.withLogging(handler)
	}

	r := &route{
		handler: handler,
		attr:    attribute.String("kind", kind),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.bufferSize > 0 {
		r.buffer = make(chan Job, cfg.bufferSize)
		workers := max(cfg.workers, 1)
		for i := 0; i < workers; i++ {
			d.workers.Add(1)
			go d.work(r)
		}
	}
	d.routes[kind] = r
}

// Dispatch routes a job to its handler. Synchronous handlers run on the
// caller's goroutine and their error is returned; buffered handlers only
// report whether the job was queued.
func (d *Dispatcher) Dispatch(job Job) error {
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}
	r, ok := d.routes[job.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}

	if r.buffer == nil {
		return d.run(r, job)
	}

	select {
	case r.buffer <- job:
		return nil
	default:
		d.metrics.dropped.Add(context.Background(), 1, metric.WithAttributes(r.attr))
		return fmt.Errorf("%w: %s", ErrQueueFull, job.Kind)
	}
}

// HasHandler reports whether a handler is registered for the kind.
func (d *Dispatcher) HasHandler(kind string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.routes[kind]
	return ok
}

// Close stops accepting jobs, lets the workers finish everything already
// queued, and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, r := range d.routes {
		if r.buffer != nil {
			close(r.buffer)
		}
	}
	d.mu.Unlock()

	d.workers.Wait()
	d.cancel()
}

func (d *Dispatcher) work(r *route) {
	defer d.workers.Done()
	for job := range r.buffer {
		d.run(r, job)
	}
}

func (d *Dispatcher) run(r *route, job Job) error {
	err := r.handler(d.ctx, job)
	if err != nil {
		d.metrics.failed.Add(context.Background(), 1, metric.WithAttributes(r.attr))
	}
	d.metrics.processed.Add(context.Background(), 1, metric.WithAttributes(r.attr))
	return err
}

func (d *Dispatcher) withLogging(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, job Job) error {
		start := time.Now()
		d.logger.Debug("handling job", "kind", job.Kind, "key", job.Key, "queued", start.Sub(job.Timestamp))

		err := h(ctx, job)

		if err != nil {
			d.logger.Error("job failed", "kind", job.Kind, "key", job.Key, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("job complete", "kind", job.Kind, "key", job.Key, "duration", time.Since(start))
		}

		return err
	}
}
