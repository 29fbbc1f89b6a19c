package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dripfeed/internal/logging"
)

// DropRecorder counts notifications that never reached the transport.
type DropRecorder interface {
	RecordNotificationDropped()
}

// DispatcherOptions tunes the asynchronous dispatcher.
type DispatcherOptions struct {
	Buffer       int
	MaxPerMinute int
	SendTimeout  time.Duration
	Logger       *slog.Logger
	Drops        DropRecorder
}

type envelope struct {
	event   Event
	payload Payload
}

// Dispatcher decouples callers from the transport. Publish never blocks: when
// the buffer is full the notification is dropped and counted.
type Dispatcher struct {
	next    Service
	queue   chan envelope
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
	drops   DropRecorder

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

// NewDispatcher starts a background sender in front of next.
func NewDispatcher(next Service, opts DispatcherOptions) *Dispatcher {
	if next == nil {
		next = noopService{}
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.MaxPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.MaxPerMinute)/60.0), 1)
	}
	d := &Dispatcher{
		next:    next,
		queue:   make(chan envelope, opts.Buffer),
		limiter: limiter,
		timeout: opts.SendTimeout,
		logger:  logging.NewComponentLogger(opts.Logger, "notifications"),
		drops:   opts.Drops,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues the notification and returns immediately.
func (d *Dispatcher) Publish(_ context.Context, event Event, payload Payload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped(event, "dispatcher closed")
		return nil
	}
	select {
	case d.queue <- envelope{event: event, payload: payload}:
	default:
		d.dropped(event, "buffer full")
	}
	return nil
}

// Close stops accepting notifications and waits for queued ones to flush or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		d.deliver(env)
	}
}

func (d *Dispatcher) deliver(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.limiter.Wait(ctx); err != nil {
		d.dropped(env.event, "rate limited")
		return
	}
	if err := d.next.Publish(ctx, env.event, env.payload); err != nil {
		if d.drops != nil {
			d.drops.RecordNotificationDropped()
		}
		logging.WarnWithContext(d.logger, "notification send failed", "notification_failed",
			logging.String("event", string(env.event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy_topic / discord_webhook reachability"),
			logging.String(logging.FieldImpact, "lifecycle notification not delivered"),
		)
	}
}

func (d *Dispatcher) dropped(event Event, reason string) {
	if d.drops != nil {
		d.drops.RecordNotificationDropped()
	}
	d.logger.Debug("notification dropped",
		logging.String("event", string(event)),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "notification_dropped"),
	)
}
