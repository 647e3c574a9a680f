// singleton provides type-safe, concurrency-safe providers for values that
// are expensive or scarce, and should therefore be constructed at most once
// and shared by every caller.
//
// A [Provider] wraps a factory function and exposes [Provider.Get], which
// returns the shared instance, constructing it on the first successful call.
// If the factory fails, the error is returned to the caller and the provider
// stays empty, so a later call may retry. Providers are plain values meant to
// be passed around explicitly; there is no global registry, and two providers
// wrapping the same type are completely independent.
package singleton

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/peterldowns/singleton/internal/gid"
)

// Factory constructs the instance that a [Provider] shares between callers.
// It receives the context of the [Provider.Get] call that triggered
// construction (or, in [ModeEager], the context passed to [New]).
type Factory[T any] func(context.Context) (T, error)

// Mode controls when a [Provider] constructs its instance and how much
// synchronization each [Provider.Get] call pays for.
type Mode int

const (
	// ModeSafe is the default: the instance is constructed lazily under
	// mutual exclusion, and once it exists every Get returns it through a
	// fast path that performs a single atomic load, without ever touching
	// the lock again.
	ModeSafe Mode = iota

	// ModeLocked constructs lazily, but every Get call acquires the lock
	// before checking for the instance, even after it has been constructed.
	ModeLocked

	// ModeUnsafe performs no mutual exclusion at all. Concurrent first
	// calls may each run the factory and observe different instances. It
	// exists to demonstrate the defect that the other modes eliminate; do
	// not use it for anything you care about.
	ModeUnsafe

	// ModeEager runs the factory inside [New], before the provider is
	// returned to anyone. Get never blocks and never fails, but the
	// construction cost is paid even if the instance is never used.
	ModeEager
)

func (m Mode) String() string {
	switch m {
	case ModeSafe:
		return "safe"
	case ModeLocked:
		return "locked"
	case ModeUnsafe:
		return "unsafe"
	case ModeEager:
		return "eager"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Option provides a way to configure a [Provider] created by [New].
//
// See:
//   - [WithCleanup]
type Option[T any] func(*Provider[T])

// WithCleanup registers a function that [Provider.Close] will call with the
// constructed instance, if one exists, to release it on explicit shutdown.
//
// Default: none, the instance is left to normal process teardown.
func WithCleanup[T any](cleanup func(T) error) Option[T] {
	return func(p *Provider[T]) {
		p.cleanup = cleanup
	}
}

// Provider wraps a [Factory] and hands out a single shared instance of T.
// The factory is captured at construction time and never exposed, so only
// the provider can ever invoke it. Create one with [New]; the zero value is
// not usable.
//
// All methods are safe for concurrent use, except that [ModeUnsafe]
// deliberately sacrifices that guarantee for Get.
type Provider[T any] struct {
	mode    Mode
	factory Factory[T]
	cleanup func(T) error

	// value transitions from nil to non-nil exactly once (in the safe
	// modes) and never reverts. The atomic store publishes the fully
	// constructed T to fast-path readers.
	value  atomic.Pointer[T]
	lock   chan struct{} // held (len 1) during construction and Close
	flight singleflight.Group

	// building holds the id of the goroutine currently running the
	// factory, 0 when idle. Used to turn reentrant Get calls into errors
	// instead of deadlocks.
	building atomic.Int64
	closed   atomic.Bool
}

// New returns a [Provider] that constructs its instance with factory
// according to mode. In [ModeEager] the factory runs before New returns,
// using ctx; if it fails, the error is returned and no provider is created.
// In every other mode ctx is unused and construction is deferred until the
// first [Provider.Get].
func New[T any](ctx context.Context, mode Mode, factory Factory[T], opts ...Option[T]) (*Provider[T], error) {
	if factory == nil {
		return nil, fmt.Errorf("singleton: factory must not be nil")
	}
	switch mode {
	case ModeSafe, ModeLocked, ModeUnsafe, ModeEager:
	default:
		return nil, fmt.Errorf("singleton: unknown mode %s", mode)
	}
	p := &Provider[T]{
		mode:    mode,
		factory: factory,
		lock:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if mode == ModeEager {
		if _, err := p.construct(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Get returns the shared instance, constructing it if necessary. Every
// caller receives the same instance; none of them owns it exclusively or may
// destroy it.
//
// If the factory fails, Get returns a [ConstructionError] wrapping the
// cause, and the provider remains empty so a later call can retry. If ctx is
// canceled while waiting for another goroutine's construction to finish, Get
// returns the context error and, again, a later call can retry. A factory
// that transitively calls Get on its own provider receives a
// [ReentrancyError] instead of deadlocking.
func (p *Provider[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if p.closed.Load() {
		return zero, ErrClosed
	}
	switch p.mode {
	case ModeEager:
		// Populated during New, before any Get could run.
		return *p.value.Load(), nil
	case ModeLocked:
		v, err := p.construct(ctx)
		if err != nil {
			return zero, err
		}
		return *v, nil
	case ModeUnsafe:
		return p.getUnsafe(ctx)
	default:
		return p.getSafe(ctx)
	}
}

// getSafe is the check-lock-check path: an atomic load first, and only when
// the instance is missing, a single shared construction attempt that
// concurrent callers wait on together.
func (p *Provider[T]) getSafe(ctx context.Context) (T, error) {
	var zero T
	if v := p.value.Load(); v != nil {
		return *v, nil
	}
	if id := p.building.Load(); id != 0 && id == gid.Current() {
		return zero, &ReentrancyError{Goroutine: id}
	}
	// Concurrent callers join a single in-flight construction; sequential
	// retries after a failure each start a fresh one.
	ch := p.flight.DoChan("construct", func() (any, error) {
		return p.construct(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return *(res.Val.(*T)), nil
	case <-ctx.Done():
		// The construction keeps running and may still populate the
		// provider; this caller just stops waiting for it.
		return zero, fmt.Errorf("singleton: waiting for instance: %w", ctx.Err())
	}
}

// getUnsafe performs the naive check-then-act sequence. The loads and stores
// are individually atomic, so racing callers never observe a torn value, but
// the check and the construction are not mutually exclusive: concurrent
// first calls may each run the factory and return different instances.
func (p *Provider[T]) getUnsafe(ctx context.Context) (T, error) {
	var zero T
	if v := p.value.Load(); v != nil {
		return *v, nil
	}
	v, err := p.factory(ctx)
	if err != nil {
		return zero, &ConstructionError{cause: err}
	}
	p.value.Store(&v)
	return v, nil
}

// construct acquires the provider's lock, re-checks the cached value, and
// runs the factory only if the instance is still missing. The lock
// acquisition respects ctx, so callers queued behind a slow factory can give
// up without leaving anything in a broken state.
func (p *Provider[T]) construct(ctx context.Context) (*T, error) {
	if id := p.building.Load(); id != 0 && id == gid.Current() {
		return nil, &ReentrancyError{Goroutine: id}
	}
	select {
	case p.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("singleton: waiting for instance: %w", ctx.Err())
	}
	defer func() { <-p.lock }()
	if p.closed.Load() {
		return nil, ErrClosed
	}
	if v := p.value.Load(); v != nil {
		return v, nil
	}
	p.building.Store(gid.Current())
	defer p.building.Store(0)
	v, err := p.factory(ctx)
	if err != nil {
		// Nothing is stored: the provider stays empty for a retry.
		return nil, &ConstructionError{cause: err}
	}
	p.value.Store(&v)
	return &v, nil
}

// Initialized reports whether the instance has been constructed yet.
func (p *Provider[T]) Initialized() bool {
	return p.value.Load() != nil
}

// Mode returns the mode the provider was created with.
func (p *Provider[T]) Mode() Mode {
	return p.mode
}

// Close marks the provider as closed and, if a cleanup function was
// registered with [WithCleanup] and an instance exists, releases the
// instance. Close waits for any in-flight construction to finish first.
// Calling Close more than once is fine; only the first call runs the
// cleanup. After Close, Get returns [ErrClosed].
func (p *Provider[T]) Close() error {
	p.lock <- struct{}{}
	defer func() { <-p.lock }()
	if p.closed.Swap(true) {
		return nil
	}
	v := p.value.Load()
	if v == nil || p.cleanup == nil {
		return nil
	}
	if err := p.cleanup(*v); err != nil {
		return fmt.Errorf("singleton: cleanup: %w", err)
	}
	return nil
}
