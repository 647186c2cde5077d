package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/observability"
)

var (
	// ErrQueueFull is returned by Publish when the event was dropped.
	ErrQueueFull = errors.New("events: queue full")
	// ErrDispatcherClosed is returned by Publish after Close.
	ErrDispatcherClosed = errors.New("events: dispatcher closed")
)

// AsyncOptions sizes an AsyncDispatcher.
type AsyncOptions struct {
	QueueSize int
	Workers   int
	// Timeout bounds each event's delivery.
	Timeout time.Duration
}

// AsyncDispatcher queues events and delivers them on worker goroutines, so
// Publish never waits on a handler. Handlers get a context detached from the
// publisher's.
type AsyncDispatcher struct {
	registry
	opts    AsyncOptions
	logger  *zap.Logger
	metrics *observability.Metrics

	queue chan Event

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher. Call Start to begin delivery.
func NewAsyncDispatcher(opts AsyncOptions, logger *zap.Logger, metrics *observability.Metrics) *AsyncDispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AsyncDispatcher{
		registry: newRegistry(),
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		queue:    make(chan Event, opts.QueueSize),
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *AsyncDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Publish enqueues the event without blocking.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- event:
		d.metrics.SetNotificationQueueDepth(len(d.queue))
		return nil
	default:
		d.metrics.RecordNotificationDropped()
		d.logger.Warn("event dropped, queue full",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Int("queue_size", d.opts.QueueSize))
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to drain, or for ctx to end.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) run() {
	defer d.wg.Done()
	for event := range d.queue {
		d.metrics.SetNotificationQueueDepth(len(d.queue))
		d.handle(event)
	}
}

func (d *AsyncDispatcher) handle(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	d.deliver(ctx, event, d.logger)
}
