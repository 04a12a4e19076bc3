// Package errors provides structured error reporting for the state library.
//
// Failures on the persistence and notification paths are environmental: they
// must never crash the update pipeline or roll back in-memory state. Instead
// they are captured as StateError values and delivered to a Handler, either
// the package-wide default or one installed per store.
package errors

import (
	"fmt"
	"time"
)

// Kind identifies the category of a reported error.
type Kind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindLoad indicates a persistence load failure during store creation or reload.
	KindLoad
	// KindSave indicates an asynchronous persistence save failure.
	KindSave
	// KindObserver indicates a panic recovered from a subscriber callback.
	KindObserver
	// KindWatch indicates a failure in a file watcher feeding store reloads.
	KindWatch
	// KindPanic indicates a recovered panic outside observer fan-out.
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindSave:
		return "save"
	case KindObserver:
		return "observer"
	case KindWatch:
		return "watch"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// StateError represents a structured error captured off the synchronous path.
type StateError struct {
	// Op is the operation that failed (e.g., "state.Store.persist").
	Op string
	// Kind categorizes the error.
	Kind Kind
	// Key is the persistence storage key, if applicable.
	Key string
	// Handle identifies the subscription whose observer failed, if applicable.
	Handle string
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error, when the
	// error wraps a recovered panic.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *StateError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s [%s] key=%s: %v", e.Op, e.Kind, e.Key, e.Err)
	case e.Handle != "":
		return fmt.Sprintf("%s [%s] subscription=%s: %v", e.Op, e.Kind, e.Handle, e.Err)
	default:
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "state.Store.notify").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Handler receives errors reported by the state library.
type Handler interface {
	// HandleError is called when an environmental error is captured.
	HandleError(err *StateError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}

// HandlerFunc adapts a function to the Handler interface.
// Panics are delivered as StateError values with KindPanic.
type HandlerFunc func(err *StateError)

// HandleError calls the wrapped function.
func (f HandlerFunc) HandleError(err *StateError) {
	f(err)
}

// HandlePanic converts the panic to a StateError and calls the wrapped function.
func (f HandlerFunc) HandlePanic(err *PanicError) {
	f(&StateError{
		Op:        err.Op,
		Kind:      KindPanic,
		Err:       fmt.Errorf("panic: %v", err.Value),
		Timestamp: err.Timestamp,
	})
}
