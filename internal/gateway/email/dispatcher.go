package email

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

type job struct {
	event Event
	msg   Message
}

// Dispatcher queues messages and delivers them from a single background
// worker. When the queue is full the message is dropped and logged.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration

	queue  chan job
	doneCh chan struct{}

	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

var _ Sender = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with the given queue size. Call Start
// before emitting and Stop on shutdown.
func NewDispatcher(transport Transport, logger *slog.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		transport: transport,
		logger:    logger,
		timeout:   10 * time.Second,
		queue:     make(chan job, queueSize),
		doneCh:    make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go d.run()
	d.logger.Info("email dispatcher started", "queue_size", cap(d.queue))
}

// Stop drains queued messages and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.doneCh
	d.logger.Info("email dispatcher stopped")
}

// Emit enqueues msg without blocking.
func (d *Dispatcher) Emit(ctx context.Context, event Event, msg Message) {
	logger := slogx.FromContext(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		logger.Warn("email dispatcher stopped, dropping message", "event", event)
		return
	}

	select {
	case d.queue <- job{event: event, msg: msg}:
		logger.Debug("email event emitted", "event", event)
	default:
		logger.Warn("email queue full, dropping message", "event", event)
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.transport.Deliver(ctx, j.event, j.msg); err != nil {
			d.logger.Error("email delivery failed",
				"event", j.event,
				"recipients", len(j.msg.Recipients),
				"error", err,
			)
		}
		cancel()
	}
}

// LogTransport writes messages to the log instead of sending them. It is the
// default when no mail relay is configured.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) Deliver(ctx context.Context, event Event, msg Message) error {
	t.Logger.InfoContext(ctx, "email delivered to log",
		"event", event,
		"recipients", msg.Recipients,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
	)
	return nil
}
