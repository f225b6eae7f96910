package hxdrive

import (
	"context"
	"sync"

	"golang.org/x/net/html"
)

// Lifecycle event names dispatched on the bus around every swap.
const (
	EventBeforeUpdate = "hx:beforeUpdate"
	EventAfterUpdate  = "hx:afterUpdate"
	EventBeforeSettle = "hx:beforeSettle"
	EventAfterSettle  = "hx:afterSettle"
)

// Listener receives dispatched events. Payload is the event's data: for
// side-channel header events it is the decoded JSON value or the literal
// header string.
type Listener func(ctx context.Context, event string, payload any)

// Bus is a minimal publish/subscribe surface. Listeners for one event run
// synchronously in registration order.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

type subscription struct {
	id int
	fn Listener
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// On registers a listener for event and returns a function that removes it.
func (b *Bus) On(event string, fn Listener) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[event]
		for i, s := range subs {
			if s.id == id {
				b.subs[event] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers event to every listener in registration order.
func (b *Bus) Dispatch(ctx context.Context, event string, payload any) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[event]))
	copy(subs, b.subs[event])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ctx, event, payload)
	}
}

// HookPhase names one of the five extension points around an interaction.
type HookPhase string

const (
	// HookOnAction runs when a trigger fires, before anything else.
	// Returning ErrCancelled vetoes the action.
	HookOnAction HookPhase = "onAction"

	// HookBeforeRequest runs before the middleware chain begins.
	HookBeforeRequest HookPhase = "beforeRequest"

	// HookAfterResponse runs once a response is obtained, before its text
	// is handed to the reconciler.
	HookAfterResponse HookPhase = "afterResponse"

	// HookBeforeSettle runs after the primary swap, before out-of-band
	// fragments apply.
	HookBeforeSettle HookPhase = "beforeSettle"

	// HookAfterSettle runs after all reconciliation completes.
	HookAfterSettle HookPhase = "afterSettle"
)

// HookEvent carries the interaction state visible to hooks. Request and
// Response are nil for phases where they do not exist yet (or at all, as
// with stream pushes).
type HookEvent struct {
	Phase    HookPhase
	Request  *Request
	Response *Response
	Element  *html.Node
	Target   *html.Node
}

// Hook observes or short-circuits an interaction phase. Hooks in one phase
// run sequentially in registration order. An error other than ErrCancelled
// is routed through the error handler without stopping the remaining hooks.
type Hook func(ctx context.Context, ev *HookEvent) error

// hookRegistry is append-only: hooks register at engine construction or
// later, and are never removed individually.
type hookRegistry struct {
	mu    sync.Mutex
	hooks map[HookPhase][]Hook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{hooks: make(map[HookPhase][]Hook)}
}

func (r *hookRegistry) add(phase HookPhase, h Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[phase] = append(r.hooks[phase], h)
}

func (r *hookRegistry) snapshot(phase HookPhase) []Hook {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Hook, len(r.hooks[phase]))
	copy(out, r.hooks[phase])
	return out
}
