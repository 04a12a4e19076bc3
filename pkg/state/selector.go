package state

import (
	"context"
	"sync"
)

// Selector is a read-only, memoized projection over one or more stores.
//
// The combine function runs only when an upstream store notifies a change;
// its result is cached, so two consecutive reads without an intervening
// upstream transition return the identical value. Selectors have no Update:
// they are derived, never mutated directly.
type Selector[R any] struct {
	inner     *Store[R]
	upstreams []func()

	// recomputeMu makes read-inputs-plus-apply atomic. Upstream stores
	// serialize only their own transitions, so concurrent updates to
	// different upstreams would otherwise let a recompute holding stale
	// inputs overwrite one that already applied fresh ones.
	recomputeMu sync.Mutex
}

// Select derives a selector from one store.
//
// Useful options are WithEquals (suppress notifications when the projection
// is unchanged even though the source moved) and WithHandler; persistence
// options do not apply to derived values and must not be passed.
func Select[A, R any](a *Store[A], combine func(A) R, opts ...Option[R]) (*Selector[R], error) {
	av, err := a.Read()
	if err != nil {
		return nil, err
	}

	sel := &Selector[R]{inner: New(combine(av), opts...)}

	recompute := func() {
		sel.recomputeMu.Lock()
		defer sel.recomputeMu.Unlock()
		av, err := a.Read()
		if err != nil {
			return // upstream disposed; keep serving the cache
		}
		sel.apply(combine(av))
	}

	sub, err := a.Subscribe(func(A) { recompute() })
	if err != nil {
		return nil, err
	}
	sel.upstreams = append(sel.upstreams, func() { a.Unsubscribe(sub) })
	return sel, nil
}

// Select2 derives a selector from two stores.
func Select2[A, B, R any](a *Store[A], b *Store[B], combine func(A, B) R, opts ...Option[R]) (*Selector[R], error) {
	av, err := a.Read()
	if err != nil {
		return nil, err
	}
	bv, err := b.Read()
	if err != nil {
		return nil, err
	}

	sel := &Selector[R]{inner: New(combine(av, bv), opts...)}

	recompute := func() {
		sel.recomputeMu.Lock()
		defer sel.recomputeMu.Unlock()
		av, errA := a.Read()
		bv, errB := b.Read()
		if errA != nil || errB != nil {
			return
		}
		sel.apply(combine(av, bv))
	}

	subA, err := a.Subscribe(func(A) { recompute() })
	if err != nil {
		return nil, err
	}
	sel.upstreams = append(sel.upstreams, func() { a.Unsubscribe(subA) })

	subB, err := b.Subscribe(func(B) { recompute() })
	if err != nil {
		a.Unsubscribe(subA)
		return nil, err
	}
	sel.upstreams = append(sel.upstreams, func() { b.Unsubscribe(subB) })
	return sel, nil
}

// Select3 derives a selector from three stores.
func Select3[A, B, C, R any](a *Store[A], b *Store[B], c *Store[C], combine func(A, B, C) R, opts ...Option[R]) (*Selector[R], error) {
	av, err := a.Read()
	if err != nil {
		return nil, err
	}
	bv, err := b.Read()
	if err != nil {
		return nil, err
	}
	cv, err := c.Read()
	if err != nil {
		return nil, err
	}

	sel := &Selector[R]{inner: New(combine(av, bv, cv), opts...)}

	recompute := func() {
		sel.recomputeMu.Lock()
		defer sel.recomputeMu.Unlock()
		av, errA := a.Read()
		bv, errB := b.Read()
		cv, errC := c.Read()
		if errA != nil || errB != nil || errC != nil {
			return
		}
		sel.apply(combine(av, bv, cv))
	}

	var cancels []func()
	subA, err := a.Subscribe(func(A) { recompute() })
	if err != nil {
		return nil, err
	}
	cancels = append(cancels, func() { a.Unsubscribe(subA) })

	subB, err := b.Subscribe(func(B) { recompute() })
	if err != nil {
		cancels[0]()
		return nil, err
	}
	cancels = append(cancels, func() { b.Unsubscribe(subB) })

	subC, err := c.Subscribe(func(C) { recompute() })
	if err != nil {
		cancels[0]()
		cancels[1]()
		return nil, err
	}
	cancels = append(cancels, func() { c.Unsubscribe(subC) })

	sel.upstreams = cancels
	return sel, nil
}

// apply stores a recomputed projection. The inner store's equality check
// suppresses the notification and version bump when the result is unchanged.
func (s *Selector[R]) apply(next R) {
	s.inner.Update(func(R) (R, error) { return next, nil })
}

// Read returns the cached projection.
func (s *Selector[R]) Read() (R, error) {
	return s.inner.Read()
}

// Version counts accepted recomputations, mirroring Store.Version.
func (s *Selector[R]) Version() uint64 {
	return s.inner.Version()
}

// Subscribe registers an observer for projection changes, with Store
// subscription semantics (no immediate delivery, optional When predicate).
func (s *Selector[R]) Subscribe(fn func(R), opts ...SubscribeOption[R]) (Subscription, error) {
	return s.inner.Subscribe(fn, opts...)
}

// Unsubscribe removes a subscription. Idempotent.
func (s *Selector[R]) Unsubscribe(sub Subscription) {
	s.inner.Unsubscribe(sub)
}

// Watch returns a channel view over the selector. See Store.Watch.
func (s *Selector[R]) Watch(ctx context.Context) (<-chan R, Subscription, error) {
	return s.inner.Watch(ctx)
}

// Dispose detaches from all upstream stores and releases the selector.
// Idempotent.
func (s *Selector[R]) Dispose() error {
	for _, cancel := range s.upstreams {
		cancel()
	}
	s.upstreams = nil
	return s.inner.Dispose()
}
