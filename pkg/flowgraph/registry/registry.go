package registry

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrNotFound is returned by Lookup for an unregistered key.
var ErrNotFound = errors.New("not registered")

// NotFoundError reports a missing key and what was available instead.
type NotFoundError[K cmp.Ordered] struct {
	Kind      string
	Key       K
	Available []K
}

func (e *NotFoundError[K]) Error() string {
	return fmt.Sprintf("%s %v %v (available: %v)", e.Kind, e.Key, ErrNotFound, e.Available)
}

func (e *NotFoundError[K]) Unwrap() error {
	return ErrNotFound
}

// Registry is a thread-safe registry for values indexed by key.
// It uses sync.RWMutex for optimal read-heavy workloads.
type Registry[K cmp.Ordered, V any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[K]V
}

// New creates a new empty registry. kind names the entries in errors,
// such as "store driver".
func New[K cmp.Ordered, V any](kind string) *Registry[K, V] {
	return &Registry[K, V]{
		kind:    kind,
		entries: make(map[K]V),
	}
}

// Register adds or updates a value in the registry.
func (r *Registry[K, V]) Register(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Lookup returns the value for a key, or a *NotFoundError listing the
// registered keys.
func (r *Registry[K, V]) Lookup(key K) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.entries[key]; ok {
		return v, nil
	}
	var zero V
	return zero, &NotFoundError[K]{
		Kind:      r.kind,
		Key:       key,
		Available: slices.Sorted(maps.Keys(r.entries)),
	}
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Keys returns all keys in the registry in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
