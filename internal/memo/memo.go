// Package memo provides lazily computed, cached values with at-most-once
// successful computation under concurrent first access.
package memo

import (
	"sync"
	"sync/atomic"
)

// Slot caches one value. The zero Slot is ready to use.
type Slot[T any] struct {
	mu  sync.Mutex
	val atomic.Pointer[T]
}

// Get returns the cached value, computing it on the first call. Racing
// callers block until the first computation finishes and then observe its
// result. A failed computation is not cached; the next caller retries.
func (s *Slot[T]) Get(compute func() (T, error)) (T, error) {
	if p := s.val.Load(); p != nil {
		return *p, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.val.Load(); p != nil { // double-check
		return *p, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	s.val.Store(&v)
	return v, nil
}

// Ready reports whether a value is cached.
func (s *Slot[T]) Ready() bool { return s.val.Load() != nil }

// Reset drops the cached value. Readers see either the old value or a miss.
func (s *Slot[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val.Store(nil)
}

// Map is a set of slots keyed by K; each key computes independently.
type Map[K comparable, V any] struct {
	slots sync.Map // K -> *Slot[V]
}

// Get returns the cached value for key, computing it at most once.
func (m *Map[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	s, ok := m.slots.Load(key)
	if !ok {
		s, _ = m.slots.LoadOrStore(key, &Slot[V]{})
	}
	return s.(*Slot[V]).Get(compute)
}

// Reset drops every cached value.
func (m *Map[K, V]) Reset() { m.slots.Clear() }
