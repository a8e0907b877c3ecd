// Package bus implements the in-process pub/sub backbone connecting the
// ingest pipeline to the state and lesson services. Dispatch is sequential:
// Emit invokes every handler registered for the event type in registration
// order and returns once all of them have run.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/yinkev/studyin/internal/logging"
)

// Event is anything that can travel on the bus. Concrete event structs live
// with the services that emit them; handlers must tolerate fields they do
// not know about.
type Event interface {
	Type() string
}

// Handler processes one event. A handler error does not stop dispatch to
// later handlers; Emit aggregates and returns all of them.
type Handler func(ctx context.Context, evt Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a process-wide event bus. The zero value is not usable; construct
// with New.
type Bus struct {
	regMu    sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64

	// dispatchMu serializes Emit so handlers for concurrent emits never
	// interleave.
	dispatchMu sync.Mutex
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]subscription)}
}

// On registers handler for events of the given type and returns an
// unsubscribe function. Unsubscribing is idempotent and safe during
// dispatch; an in-flight Emit keeps delivering to the snapshot it took.
func (b *Bus) On(eventType string, handler Handler) func() {
	b.regMu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.regMu.Unlock()

	return func() {
		b.regMu.Lock()
		defer b.regMu.Unlock()
		subs := b.handlers[eventType]
		for i, sub := range subs {
			if sub.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// dispatchKey marks a context as already inside this bus's dispatch, so a
// handler emitting a follow-up event does not deadlock on dispatchMu.
type dispatchKey struct{}

// Emit delivers evt to every handler registered for its type, sequentially
// in registration order, and returns after the last one completes. Handler
// errors are joined; a cancelled context stops delivery to the remaining
// handlers. Handlers may emit follow-up events with the context they were
// given; those dispatch inline within the current emit.
func (b *Bus) Emit(ctx context.Context, evt Event) error {
	b.regMu.RLock()
	subs := make([]subscription, len(b.handlers[evt.Type()]))
	copy(subs, b.handlers[evt.Type()])
	b.regMu.RUnlock()

	if len(subs) == 0 {
		logging.Bus("no handlers for %s", evt.Type())
		return nil
	}

	if ctx.Value(dispatchKey{}) != b {
		b.dispatchMu.Lock()
		defer b.dispatchMu.Unlock()
		ctx = context.WithValue(ctx, dispatchKey{}, b)
	}

	var errs []error
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := sub.handler(ctx, evt); err != nil {
			logging.Bus("handler for %s failed: %v", evt.Type(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandlerCount reports the number of handlers registered for a type.
func (b *Bus) HandlerCount(eventType string) int {
	b.regMu.RLock()
	defer b.regMu.RUnlock()
	return len(b.handlers[eventType])
}
