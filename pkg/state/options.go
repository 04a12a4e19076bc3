package state

import (
	"time"

	"github.com/go-drift/state/pkg/errors"
	"github.com/go-drift/state/pkg/persist"
)

const (
	defaultLoadTimeout  = 5 * time.Second
	defaultSaveTimeout  = 5 * time.Second
	defaultFlushTimeout = 2 * time.Second
)

type config[T any] struct {
	binding      *persist.Binding[T]
	equals       func(a, b T) bool
	handler      errors.Handler
	loadTimeout  time.Duration
	saveTimeout  time.Duration
	flushTimeout time.Duration
}

// Option configures a Store at creation.
type Option[T any] func(*config[T])

// WithBinding attaches a persistence binding. The store loads its initial
// value through the binding and saves every accepted transition.
func WithBinding[T any](b *persist.Binding[T]) Option[T] {
	return func(c *config[T]) {
		c.binding = b
	}
}

// WithEquals replaces the default structural equality (reflect.DeepEqual)
// used for no-op detection and default notify predicates.
func WithEquals[T any](eq func(a, b T) bool) Option[T] {
	return func(c *config[T]) {
		c.equals = eq
	}
}

// WithHandler routes this store's environmental errors (load, save, observer)
// to h instead of the package-global handler.
func WithHandler[T any](h errors.Handler) Option[T] {
	return func(c *config[T]) {
		c.handler = h
	}
}

// WithLoadTimeout bounds the persistence load performed at creation, and by
// Reload when the caller's context carries no deadline. Default 5s.
func WithLoadTimeout[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		c.loadTimeout = d
	}
}

// WithSaveTimeout bounds each asynchronous persistence write. Default 5s.
func WithSaveTimeout[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		c.saveTimeout = d
	}
}

// WithFlushTimeout bounds how long Dispose waits for the pending persistence
// write to drain. Default 2s.
func WithFlushTimeout[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		c.flushTimeout = d
	}
}
