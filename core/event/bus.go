package event

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/dmitrymomot/conveyor/core/logger"
)

// Listener handles an event payload. It must not block for long; Bus invokes
// listeners synchronously, in publish order, on the publisher's goroutine.
type Listener func(ctx context.Context, payload any)

// Bus is a synchronous, in-process event bus. The zero value is not usable;
// construct one with NewBus.
//
// Dispatch is modeled on this author's syncTransport: a direct call in the
// caller's goroutine, with panic recovery per listener. It diverges from
// syncTransport in one respect: listener errors and panics are logged and
// swallowed rather than joined and returned, because nothing in this module
// treats a bad subscriber as a reason to fail the thing it is observing.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	log       *slog.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report listener panics and errors.
func WithLogger(log *slog.Logger) BusOption {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBus creates a ready-to-use Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		listeners: make(map[string][]Listener),
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn to be invoked whenever name is published. The
// returned func removes the subscription; it is safe to call more than once.
func (b *Bus) Subscribe(name string, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := len(b.listeners[name])
	b.listeners[name] = append(b.listeners[name], fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			ls := b.listeners[name]
			if id < len(ls) {
				ls[id] = nil
			}
		})
	}
}

// Publish invokes every listener registered for name, in registration order,
// on the calling goroutine. A listener that panics or is nil is skipped; the
// panic is recovered and logged, never propagated to the caller.
func (b *Bus) Publish(ctx context.Context, name string, payload any) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners[name]))
	copy(listeners, b.listeners[name])
	b.mu.RUnlock()

	for _, l := range listeners {
		if l == nil {
			continue
		}
		b.safeInvoke(ctx, name, l, payload)
	}
}

func (b *Bus) safeInvoke(ctx context.Context, name string, l Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.ErrorContext(ctx, "event listener panicked",
				slog.String("event", name), logger.Error(fmt.Errorf("panic: %v\n%s", r, debug.Stack())))
		}
	}()
	l(ctx, payload)
}
