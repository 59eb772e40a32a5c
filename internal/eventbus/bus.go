// Package eventbus is an in-process publish/subscribe table keyed by event
// name. Handlers run synchronously on the emitting goroutine.
package eventbus

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Handler receives the payload of one emitted event.
type Handler func(payload any)

type entry struct {
	id uint64
	fn Handler
}

// Bus maps event names to ordered handler lists.
type Bus struct {
	log log.FieldLogger

	mu       sync.Mutex
	handlers map[string][]entry
	nextID   uint64
}

// New creates an empty bus.
func New(logger log.FieldLogger) *Bus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bus{
		log:      logger.WithField("component", "eventbus"),
		handlers: make(map[string][]entry),
	}
}

// Subscription identifies a single On registration.
type Subscription struct {
	bus  *Bus
	name string
	id   uint64
}

// Unsubscribe removes this registration only. It is safe to call more than
// once and after Off has already cleared the name.
func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.remove(s.name, s.id)
}

// On appends fn to the handlers for name.
func (b *Bus) On(name string, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], entry{id: id, fn: fn})
	return Subscription{bus: b, name: name, id: id}
}

// Off removes every handler registered for name, whoever registered it.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	delete(b.handlers, name)
	b.mu.Unlock()
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[name]
	for i, e := range list {
		if e.id != id {
			continue
		}
		// Copy so a snapshot taken by an in-flight Emit is left untouched.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, name)
		} else {
			b.handlers[name] = next
		}
		return
	}
}

// Count returns the number of handlers registered for name.
func (b *Bus) Count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[name])
}

// Emit calls every handler registered for name, in registration order. The
// list is snapshotted first, so handlers may call On or Off freely. A
// panicking handler is logged and the remaining handlers still run.
func (b *Bus) Emit(name string, payload any) {
	b.mu.Lock()
	list := b.handlers[name]
	snapshot := make([]entry, len(list))
	copy(snapshot, list)
	b.mu.Unlock()

	for _, e := range snapshot {
		b.call(name, e.fn, payload)
	}
}

func (b *Bus) call(name string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("event", name).Errorf("listener failed: %v", r)
		}
	}()
	fn(payload)
}
