// Package pubsub is a synchronous, keyed fan-out registry. Handlers for a
// key run in registration order; a panicking handler is logged and does
// not stop the others.
package pubsub

import (
	"fmt"
	"sync"

	"ai-dashboard-client/internal/pkg/logger"
)

// Unsubscribe removes a handler. Calling it more than once is harmless.
type Unsubscribe func()

type entry[V any] struct {
	id uint64
	fn func(V)
}

type Registry[K comparable, V any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[K][]entry[V]

	module string
	logger logger.ILogger
}

func New[K comparable, V any](module string, log logger.ILogger) *Registry[K, V] {
	return &Registry[K, V]{
		handlers: make(map[K][]entry[V]),
		module:   module,
		logger:   log,
	}
}

// Subscribe registers fn for key.
func (r *Registry[K, V]) Subscribe(key K, fn func(V)) Unsubscribe {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[key] = append(r.handlers[key], entry[V]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, id) })
	}
}

// Publish invokes every handler registered for key and returns how many ran.
func (r *Registry[K, V]) Publish(key K, value V) int {
	r.mu.RLock()
	snapshot := make([]entry[V], len(r.handlers[key]))
	copy(snapshot, r.handlers[key])
	r.mu.RUnlock()

	for _, e := range snapshot {
		r.invoke(key, e, value)
	}
	return len(snapshot)
}

// Len returns the number of handlers registered for key.
func (r *Registry[K, V]) Len(key K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[key])
}

func (r *Registry[K, V]) remove(key K, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[key]
	for i, e := range list {
		if e.id == id {
			r.handlers[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[key]) == 0 {
		delete(r.handlers, key)
	}
}

func (r *Registry[K, V]) invoke(key K, e entry[V], value V) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(r.module, "Subscriber panicked", map[string]interface{}{
				"key":   fmt.Sprint(key),
				"error": fmt.Sprint(rec),
			})
		}
	}()
	e.fn(value)
}
