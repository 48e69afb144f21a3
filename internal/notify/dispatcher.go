package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"selco.dev/staffauth/internal/obs"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrClosed    = errors.New("notify: dispatcher closed")
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

// Topics maps event kinds to broker topics.
type Topics struct {
	UserCreated  string
	EmailSend    string
	Connectivity string
}

type job struct {
	topic string
	key   string
	msg   Message
}

// Dispatcher decouples callers from the broker: events are queued in memory
// and published by a background worker. A full queue drops the event.
type Dispatcher struct {
	publisher Publisher
	topics    Topics
	logger    *zap.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	queue  chan job
	closed bool
	wg     sync.WaitGroup
}

// DispatcherOption configures Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the number of pending events.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan job, n)
		}
	}
}

// WithPublishTimeout bounds each broker call made by the worker.
func WithPublishTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher starts the publishing worker.
func NewDispatcher(publisher Publisher, topics Topics, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		topics:    topics,
		logger:    obs.Logger(),
		timeout:   defaultPublishTimeout,
		queue:     make(chan job, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// AccountCreated queues the account-created event.
func (d *Dispatcher) AccountCreated(ctx context.Context, evt AccountCreated) error {
	return d.enqueue(ctx, d.topics.UserCreated, evt.Email, EventAccountCreated, evt)
}

// SendEmail queues an email request.
func (d *Dispatcher) SendEmail(ctx context.Context, email Email) error {
	return d.enqueue(ctx, d.topics.EmailSend, email.Recipient, EventEmailToSend, email)
}

func (d *Dispatcher) enqueue(ctx context.Context, topic, key, eventType string, payload any) error {
	msg, err := NewMessage(eventType, payload, obs.RequestIDFromContext(ctx))
	if err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job{topic: topic, key: key, msg: msg}:
		return nil
	default:
		obs.NotificationDropped(eventType)
		return fmt.Errorf("%w: %s", ErrQueueFull, eventType)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_, _, err := d.publisher.PublishJSON(ctx, j.topic, j.key, j.msg)
		cancel()
		if err != nil {
			d.logger.Warn("notification publish failed",
				zap.String("topic", j.topic),
				zap.String("event_type", j.msg.EventType),
				zap.String("event_id", j.msg.EventID),
				zap.Error(err),
			)
			continue
		}
		d.logger.Debug("notification published",
			zap.String("topic", j.topic),
			zap.String("event_type", j.msg.EventType),
			zap.String("event_id", j.msg.EventID),
		)
	}
}

// Check publishes a probe on the connectivity topic, bypassing the queue.
func (d *Dispatcher) Check(ctx context.Context) error {
	if d.topics.Connectivity == "" {
		return nil
	}
	msg, err := NewMessage(EventConnectivity, map[string]any{"at": time.Now().UTC()}, "")
	if err != nil {
		return err
	}
	if _, _, err := d.publisher.PublishJSON(ctx, d.topics.Connectivity, "probe", msg); err != nil {
		return fmt.Errorf("broker connectivity: %w", err)
	}
	return nil
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return d.publisher.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
