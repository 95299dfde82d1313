package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/tinytree/internal/event"
	"github.com/Iron-Ham/tinytree/internal/logging"
)

// DefaultQueueSize is the number of pending events the Listener buffers
// before Publish blocks.
const DefaultQueueSize = 256

// defaultDeliveryTimeout bounds the delivery of one event, retries included.
const defaultDeliveryTimeout = 30 * time.Second

// Listener forwards run events from a bus to a Messenger in publish order.
type Listener struct {
	bus       *event.Bus
	messenger *Messenger
	logger    *logging.Logger
	timeout   time.Duration
	onSettled func(event.RunCompletedEvent)

	mu     sync.RWMutex // guards closed against sends on the queue
	closed bool
	queue  chan event.Event
	subs   []string
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for delivery failures.
func WithListenerLogger(logger *logging.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.queue = make(chan event.Event, n)
		}
	}
}

// WithDeliveryTimeout bounds each event's delivery.
func WithDeliveryTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithSettled sets a function called after a run's completion message was
// delivered or given up on.
func WithSettled(fn func(event.RunCompletedEvent)) ListenerOption {
	return func(l *Listener) {
		l.onSettled = fn
	}
}

// NewListener creates a Listener. Call Start to begin delivery.
func NewListener(bus *event.Bus, messenger *Messenger, opts ...ListenerOption) *Listener {
	l := &Listener{
		bus:       bus,
		messenger: messenger,
		logger:    logging.NopLogger(),
		timeout:   defaultDeliveryTimeout,
		queue:     make(chan event.Event, DefaultQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start subscribes to run events and starts the delivery worker.
func (l *Listener) Start() {
	l.startOnce.Do(func() {
		l.subs = []string{
			l.bus.Subscribe(event.TypeRunAccepted, l.enqueue),
			l.bus.Subscribe(event.TypeRunProgress, l.enqueue),
			l.bus.Subscribe(event.TypeRunCompleted, l.enqueue),
		}
		go l.loop()
	})
}

// Stop unsubscribes and waits until queued events are delivered or ctx is
// done. Events published after Stop are not delivered.
func (l *Listener) Stop(ctx context.Context) error {
	started := false
	l.startOnce.Do(func() {})
	l.stopOnce.Do(func() {
		started = l.subs != nil
		for _, id := range l.subs {
			l.bus.Unsubscribe(id)
		}
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	if !started {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Listener) enqueue(e event.Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.queue <- e
}

func (l *Listener) loop() {
	defer close(l.done)
	for e := range l.queue {
		l.deliver(e)
	}
}

func (l *Listener) deliver(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	switch ev := e.(type) {
	case event.RunAcceptedEvent:
		if _, err := l.messenger.PostToChannel(ctx, ev.ChannelID, AcceptedText(ev), ev.RequestID); err != nil {
			l.failed(ev.Run, e, err)
		}

	case event.ProgressEvent:
		if err := l.messenger.PostToThread(ctx, ev.ChannelID, ev.Message, ev.RequestID); err != nil {
			l.failed(ev.Run, e, err)
		}
		if len(ev.Details) > 0 {
			title := ev.Phase
			if title == "" {
				title = "details"
			}
			if err := l.messenger.PostDetails(ctx, ev.ChannelID, title, DetailFields(ev.Details), ev.RequestID); err != nil {
				l.failed(ev.Run, e, err)
			}
		}

	case event.RunCompletedEvent:
		if err := l.messenger.PostToThread(ctx, ev.ChannelID, CompletedText(ev), ev.RequestID); err != nil {
			l.failed(ev.Run, e, err)
		}
		l.messenger.Forget(ev.RequestID)
		if l.onSettled != nil {
			l.onSettled(ev)
		}
	}
}

func (l *Listener) failed(run event.Run, e event.Event, err error) {
	l.logger.WithRequest(run.RequestID).Failure("notification delivery failed", err,
		"event", e.EventType(),
		"channel", run.ChannelID,
	)
}
