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
	defaultPoolSize       = 1024
	defaultHandlerTimeout = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. Each handler invocation runs on its own
// goroutine, bounded by a shared slot pool; publishing never fails from the
// caller's point of view. Handler errors and panics are logged, not
// propagated.
type Bus struct {
	slots    chan struct{}
	inflight sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a bus. The caller should call Stop on shutdown so in-flight
// handlers can drain.
func NewBus() *Bus {
	return &Bus{
		slots:    make(chan struct{}, defaultPoolSize),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// Publish dispatches the event to every handler subscribed to its name.
// Blocks only while the slot pool is exhausted.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, h := range hs {
		b.inflight.Add(1)
		b.slots <- struct{}{}

		go func(h Handler) {
			defer func() {
				<-b.slots
				b.inflight.Done()
			}()

			b.invoke(ctx, h, e)
		}(h)
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, e Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultHandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "event: handler panic",
				"event", e.Name(),
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	if err := h(ctx, e); err != nil {
		slog.ErrorContext(ctx, "event: handle event failed",
			"event", e.Name(),
			"error", err,
		)
	}
}

// Stop waits for all in-flight handlers to finish.
func (b *Bus) Stop() {
	b.inflight.Wait()
}
