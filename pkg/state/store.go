package state

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-drift/state/pkg/errors"
	"github.com/go-drift/state/pkg/persist"
)

// Reducer describes one state transition. It must be pure: compute the next
// value from the current one without side effects. Returning an error aborts
// the transition.
type Reducer[T any] func(current T) (T, error)

// Store holds one immutable state value and notifies subscribers when it
// changes.
//
// A store is safe for concurrent use. Updates are serialized: a call entered
// while another transition is in flight blocks, then observes the prior
// result as its current value, so interleaved reducers never lose updates.
// Observer callbacks run synchronously on the updating goroutine and must not
// call Update on the same store.
type Store[T any] struct {
	equals       func(a, b T) bool
	binding      *persist.Binding[T]
	handler      errors.Handler
	loadTimeout  time.Duration
	saveTimeout  time.Duration
	flushTimeout time.Duration

	// updateMu serializes transitions (Update, Reload, Dispose) including
	// their fan-out, giving subscribers a total order over versions.
	updateMu sync.Mutex

	// mu guards the fields below.
	mu       sync.RWMutex
	value    T
	version  uint64
	subs     map[uuid.UUID]*subscription[T]
	disposed bool

	done chan struct{} // closed on Dispose

	saveCh      chan T // nil without a binding; capacity 1, latest-wins
	persistDone chan struct{}
}

// New creates a store holding initial.
//
// With a binding, New attempts to load a previously saved value; on success
// the loaded value replaces initial. A missing key falls back to initial
// silently (first run); any other load failure also falls back but is
// reported through the error handler. New always returns a usable store.
func New[T any](initial T, opts ...Option[T]) *Store[T] {
	cfg := config[T]{
		equals:       func(a, b T) bool { return reflect.DeepEqual(a, b) },
		loadTimeout:  defaultLoadTimeout,
		saveTimeout:  defaultSaveTimeout,
		flushTimeout: defaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store[T]{
		equals:       cfg.equals,
		binding:      cfg.binding,
		handler:      cfg.handler,
		loadTimeout:  cfg.loadTimeout,
		saveTimeout:  cfg.saveTimeout,
		flushTimeout: cfg.flushTimeout,
		value:        initial,
		subs:         make(map[uuid.UUID]*subscription[T]),
		done:         make(chan struct{}),
	}

	if s.binding != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
		loaded, err := s.binding.Load(ctx)
		cancel()
		switch {
		case err == nil:
			s.value = loaded
		case stderrors.Is(err, persist.ErrNotFound):
			// First run: keep the supplied initial value.
		default:
			errors.ReportTo(s.handler, &errors.StateError{
				Op:   "state.New",
				Kind: errors.KindLoad,
				Key:  s.binding.Key,
				Err:  err,
			})
		}

		s.saveCh = make(chan T, 1)
		s.persistDone = make(chan struct{})
		go s.persistLoop()
	}

	return s
}

// Read returns the current snapshot. No side effects.
func (s *Store[T]) Read() (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		var zero T
		return zero, ErrDisposed
	}
	return s.value, nil
}

// Version returns the number of accepted transitions. It increases by exactly
// one per accepted Update or Reload and never decreases. It remains readable
// after disposal.
func (s *Store[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Update applies fn to the current value.
//
// When fn returns a value structurally equal to the current one, Update is a
// no-op: no version bump, no notification, no persistence write. Otherwise
// the store swaps in the new value, increments the version, synchronously
// notifies every subscription whose predicate accepts the transition, and
// queues an asynchronous persistence write.
//
// When fn returns an error, nothing is mutated and Update returns a
// *ReducerError wrapping it.
func (s *Store[T]) Update(fn Reducer[T]) (T, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var zero T

	s.mu.RLock()
	if s.disposed {
		s.mu.RUnlock()
		return zero, ErrDisposed
	}
	current := s.value
	s.mu.RUnlock()

	next, err := fn(current)
	if err != nil {
		return zero, &ReducerError{Err: err}
	}
	if s.equals(current, next) {
		return current, nil
	}

	s.commit(current, next)

	if s.binding != nil {
		s.enqueueSave(next)
	}
	return next, nil
}

// Reload loads the persisted value and applies it as a normal transition:
// equality short-circuits, the version bumps, and subscribers are notified.
// The loaded value is not written back to the backend. When ctx carries no
// deadline the store's load timeout bounds the read. Stores without a
// binding return the current value unchanged.
func (s *Store[T]) Reload(ctx context.Context) (T, error) {
	if s.binding == nil {
		return s.Read()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.loadTimeout)
		defer cancel()
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	var zero T

	s.mu.RLock()
	if s.disposed {
		s.mu.RUnlock()
		return zero, ErrDisposed
	}
	current := s.value
	s.mu.RUnlock()

	loaded, err := s.binding.Load(ctx)
	if err != nil {
		return zero, fmt.Errorf("state: reload: %w", err)
	}
	if s.equals(current, loaded) {
		return current, nil
	}

	s.commit(current, loaded)
	return loaded, nil
}

// commit swaps in next, bumps the version, and fans out notifications.
// Callers hold updateMu and have already established next != current.
func (s *Store[T]) commit(current, next T) {
	s.mu.Lock()
	s.value = next
	s.version++
	targets := make(map[uuid.UUID]*subscription[T], len(s.subs))
	for id, sub := range s.subs {
		targets[id] = sub
	}
	s.mu.Unlock()

	for id, sub := range targets {
		if sub.when != nil && !sub.when(current, next) {
			continue
		}
		s.notify(id, sub, next)
	}
}

// notify invokes one observer, containing any panic so the rest of the
// fan-out still runs.
func (s *Store[T]) notify(id uuid.UUID, sub *subscription[T], next T) {
	defer func() {
		if r := recover(); r != nil {
			errors.ReportTo(s.handler, &errors.StateError{
				Op:         "state.Store.notify",
				Kind:       errors.KindObserver,
				Handle:     id.String(),
				Err:        fmt.Errorf("observer panic: %v", r),
				StackTrace: errors.CaptureStack(),
			})
		}
	}()
	sub.observer(next)
}

// Subscribe registers an observer for future transitions. It does not invoke
// the observer with the current value; call Read first if you need it.
func (s *Store[T]) Subscribe(fn func(T), opts ...SubscribeOption[T]) (Subscription, error) {
	sub := &subscription[T]{observer: fn}
	for _, opt := range opts {
		opt(sub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return Subscription{}, ErrDisposed
	}
	id := uuid.New()
	s.subs[id] = sub
	return Subscription{id: id}, nil
}

// Unsubscribe removes a subscription. It is idempotent: unknown, already
// removed, and zero handles are no-ops, as are calls after disposal.
func (s *Store[T]) Unsubscribe(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		return
	}
	delete(s.subs, sub.id)
}

// Dispose releases the store: subscriptions are cleared, the pending
// persistence write is flushed best-effort within the flush timeout, and the
// store becomes terminal. Every operation except Unsubscribe and Dispose
// itself then returns ErrDisposed. Dispose is idempotent.
func (s *Store[T]) Dispose() error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.subs = nil
	s.mu.Unlock()

	close(s.done)

	if s.binding != nil {
		close(s.saveCh)
		select {
		case <-s.persistDone:
		case <-time.After(s.flushTimeout):
		}
	}
	return nil
}

// enqueueSave hands next to the persistence worker, replacing any value still
// waiting: only the latest state needs to reach disk.
func (s *Store[T]) enqueueSave(next T) {
	for {
		select {
		case s.saveCh <- next:
			return
		default:
			// Mailbox full: drop the stale pending value and retry.
			select {
			case <-s.saveCh:
			default:
			}
		}
	}
}

// persistLoop writes queued values until the mailbox closes, draining the
// final pending value so Dispose can flush it.
func (s *Store[T]) persistLoop() {
	defer close(s.persistDone)
	for v := range s.saveCh {
		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		err := s.binding.Save(ctx, v)
		cancel()
		if err != nil {
			errors.ReportTo(s.handler, &errors.StateError{
				Op:   "state.Store.persist",
				Kind: errors.KindSave,
				Key:  s.binding.Key,
				Err:  err,
			})
		}
	}
}
