package state

import "github.com/google/uuid"

// Subscription is the opaque handle returned by Subscribe.
// The zero value is inert: unsubscribing it is a no-op.
type Subscription struct {
	id uuid.UUID
}

// String returns the handle's identifier, used to tag observer errors.
func (s Subscription) String() string {
	return s.id.String()
}

type subscription[T any] struct {
	observer func(T)
	when     func(old, next T) bool
}

// SubscribeOption configures a single subscription.
type SubscribeOption[T any] func(*subscription[T])

// When installs a should-notify predicate: the observer fires only for
// transitions the predicate accepts. Without it, every accepted transition
// notifies (no-op transitions never reach subscribers at all).
func When[T any](pred func(old, next T) bool) SubscribeOption[T] {
	return func(s *subscription[T]) {
		s.when = pred
	}
}
