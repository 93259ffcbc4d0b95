package cav

import (
	"context"
	"fmt"
	"sync"
)

// Listener is invoked synchronously after each audit append with a copy of
// the stored event. A returned error or a panic is logged and does not affect
// other listeners or the append.
type Listener func(ctx context.Context, ev AuditEvent) error

type listenerEntry struct {
	id int
	fn Listener
}

type listenerRegistry struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry
	logger  Logger
}

func newListenerRegistry(logger Logger) *listenerRegistry {
	return &listenerRegistry{logger: logger}
}

func (r *listenerRegistry) add(fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *listenerRegistry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// notify calls every listener in registration order.
func (r *listenerRegistry) notify(ctx context.Context, ev AuditEvent) {
	r.mu.Lock()
	entries := append([]listenerEntry(nil), r.entries...)
	r.mu.Unlock()

	for _, e := range entries {
		if err := r.call(ctx, e, ev.clone()); err != nil {
			r.logger.Warn("audit listener failed", "listener", e.id, "eventType", ev.EventType, "error", err)
		}
	}
}

func (r *listenerRegistry) call(ctx context.Context, e listenerEntry, ev AuditEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	return e.fn(ctx, ev)
}
