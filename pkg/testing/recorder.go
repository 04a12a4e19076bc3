package testing

import (
	"sync"
	"time"

	"github.com/go-drift/state/pkg/errors"
)

// Recorder captures values delivered to an observer.
// Register its Observe method as the subscriber:
//
//	rec := statetest.NewRecorder[int]()
//	store.Subscribe(rec.Observe)
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewRecorder returns an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Observe records a notified value.
func (r *Recorder[T]) Observe(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

// Values returns a copy of the recorded values in notification order.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// WaitFor polls until at least n values are recorded or the timeout elapses.
func (r *Recorder[T]) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// CaptureHandler is an errors.Handler that records reports instead of
// logging, for asserting on the error side channel.
type CaptureHandler struct {
	mu     sync.Mutex
	errs   []*errors.StateError
	panics []*errors.PanicError
}

// NewCaptureHandler returns an empty capture handler.
func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{}
}

// HandleError records the error.
func (c *CaptureHandler) HandleError(err *errors.StateError) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

// HandlePanic records the panic.
func (c *CaptureHandler) HandlePanic(err *errors.PanicError) {
	c.mu.Lock()
	c.panics = append(c.panics, err)
	c.mu.Unlock()
}

// Errors returns a copy of the captured errors.
func (c *CaptureHandler) Errors() []*errors.StateError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*errors.StateError, len(c.errs))
	copy(out, c.errs)
	return out
}

// Panics returns a copy of the captured panics.
func (c *CaptureHandler) Panics() []*errors.PanicError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*errors.PanicError, len(c.panics))
	copy(out, c.panics)
	return out
}

// WaitForErrors polls until at least n errors are captured or the timeout
// elapses.
func (c *CaptureHandler) WaitForErrors(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		count := len(c.errs)
		c.mu.Unlock()
		if count >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
