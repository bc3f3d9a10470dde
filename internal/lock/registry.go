package locking

import "sync"

type entry[V any] struct {
	val  V
	refs *RefCount
}

// Registry shares one value per key between many holders. The value is
// built by the first Acquire and closed by the last Release.
type Registry[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]*entry[V])}
}

// Acquire returns the shared value for key, calling open when no holder
// exists yet.
func (r *Registry[K, V]) Acquire(key K, open func() (V, error)) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.refs.Retain()
		return e.val, nil
	}
	v, err := open()
	if err != nil {
		var zero V
		return zero, err
	}
	r.entries[key] = &entry[V]{val: v, refs: NewRefCount()}
	return v, nil
}

// Release drops one hold on key. The last release removes the entry and
// runs closeFn on the value.
func (r *Registry[K, V]) Release(key K, closeFn func(V) error) error {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	last := e.refs.Release()
	if last {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if last && closeFn != nil {
		return closeFn(e.val)
	}
	return nil
}

// Held reports how many holders key has.
func (r *Registry[K, V]) Held(key K) int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs.Holders()
	}
	return 0
}
