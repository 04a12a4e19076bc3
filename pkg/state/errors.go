package state

import "errors"

// ErrDisposed is returned by operations on a disposed store or selector.
// Unsubscribe and Dispose remain idempotent no-ops instead.
var ErrDisposed = errors.New("state: store disposed")

// ReducerError wraps an error returned by a reducer. The transition is
// aborted: state, version, subscribers, and persistence are all untouched.
type ReducerError struct {
	Err error
}

func (e *ReducerError) Error() string {
	return "state: reducer failed: " + e.Err.Error()
}

func (e *ReducerError) Unwrap() error {
	return e.Err
}
