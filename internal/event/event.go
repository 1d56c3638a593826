package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

type Option func(*Bus)

// WithPoolSize limits how many handlers run at the same time.
func WithPoolSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.pool = make(chan struct{}, n)
		}
	}
}

// WithTimeout bounds the run time of a single handler.
func WithTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// Bus is an in-memory event bus. Handlers run asynchronously and detached from the
// publisher's cancellation.
type Bus struct {
	pool    chan struct{}
	timeout time.Duration
	wg      sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]subscription
}

type subscription struct {
	name string
	h    Handler
}

// NewBus creates a new event bus. Caller should call Stop to drain pending handlers.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		pool:     make(chan struct{}, defaultPoolSize),
		timeout:  defaultTimeout,
		handlers: make(map[string][]subscription),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers h for events named event. subscriber only labels log lines.
func (b *Bus) Subscribe(event, subscriber string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[event] = append(b.handlers[event], subscription{name: subscriber, h: h})
}

// Publish dispatches e to every handler subscribed to its name.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, s, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, e Event) {
	b.wg.Add(1)
	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"subscriber", s.name,
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := s.h(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"subscriber", s.name,
				"error", err,
			)
		}
	}()
}

// Stop waits for all dispatched handlers to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
