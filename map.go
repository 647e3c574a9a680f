package singleton

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Map is a type-safe, concurrency-safe map in which every key holds its own
// lazily-constructed singleton value. Concurrent Get calls for the same key
// share a single construction attempt; different keys construct in parallel.
// A failed construction caches nothing, so the next Get for that key
// retries. The "at most one instance" guarantee is scoped per key, per Map.
type Map[K comparable, V any] struct {
	factory func(context.Context, K) (V, error)
	cleanup func(V) error

	providers sync.Map // map[K]*Provider[V]
	closed    atomic.Bool
}

// MapOption provides a way to configure a [Map] created by [NewMap].
//
// See:
//   - [WithMapCleanup]
type MapOption[K comparable, V any] func(*Map[K, V])

// WithMapCleanup registers a function that [Map.Close] will call with each
// constructed value to release it on explicit shutdown.
//
// Default: none.
func WithMapCleanup[K comparable, V any](cleanup func(V) error) MapOption[K, V] {
	return func(m *Map[K, V]) {
		m.cleanup = cleanup
	}
}

// NewMap returns a [Map] whose values are constructed on demand by factory,
// at most once per key.
func NewMap[K comparable, V any](
	factory func(context.Context, K) (V, error),
	opts ...MapOption[K, V],
) (*Map[K, V], error) {
	if factory == nil {
		return nil, fmt.Errorf("singleton: factory must not be nil")
	}
	m := &Map[K, V]{factory: factory}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get returns the shared value for key, constructing it if necessary. The
// error contract is the same as [Provider.Get]: a [ConstructionError] leaves
// the key empty for a later retry.
func (m *Map[K, V]) Get(ctx context.Context, key K) (V, error) {
	if m.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	p, err := m.provider(key)
	if err != nil {
		var zero V
		return zero, err
	}
	return p.Get(ctx)
}

// Initialized reports whether the value for key has been constructed yet.
func (m *Map[K, V]) Initialized(key K) bool {
	raw, ok := m.providers.Load(key)
	if !ok {
		return false
	}
	return raw.(*Provider[V]).Initialized()
}

// provider returns the per-key [Provider], creating it on first use. The
// provider itself is cheap; the expensive part is the value, which it
// constructs lazily.
func (m *Map[K, V]) provider(key K) (*Provider[V], error) {
	if raw, ok := m.providers.Load(key); ok {
		return raw.(*Provider[V]), nil
	}
	var opts []Option[V]
	if m.cleanup != nil {
		opts = append(opts, WithCleanup(m.cleanup))
	}
	p, err := New(context.Background(), ModeSafe, func(ctx context.Context) (V, error) {
		return m.factory(ctx, key)
	}, opts...)
	if err != nil {
		return nil, err
	}
	raw, _ := m.providers.LoadOrStore(key, p)
	return raw.(*Provider[V]), nil
}

// Close closes every per-key provider, running the registered cleanup for
// each value that was constructed. All cleanup failures are joined into the
// returned error. After Close, Get returns [ErrClosed] for every key.
// Calling Close more than once is fine.
func (m *Map[K, V]) Close() error {
	m.closed.Store(true)
	var errs []error
	m.providers.Range(func(_, raw any) bool {
		if err := raw.(*Provider[V]).Close(); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}
