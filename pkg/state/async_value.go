package state

import "fmt"

// asyncStatus tags the AsyncValue union.
type asyncStatus int

const (
	asyncLoading asyncStatus = iota
	asyncData
	asyncFailure
)

// AsyncValue is a tagged union over the three phases of asynchronous data:
// loading, loaded, or failed. It replaces per-feature Loading/Loaded/Error
// type hierarchies with one generic slice type that any store can hold.
//
// The zero value is Loading.
type AsyncValue[T any] struct {
	status asyncStatus
	value  T
	err    error
}

// Loading returns the loading phase.
func Loading[T any]() AsyncValue[T] {
	return AsyncValue[T]{status: asyncLoading}
}

// Data returns the loaded phase holding v.
func Data[T any](v T) AsyncValue[T] {
	return AsyncValue[T]{status: asyncData, value: v}
}

// Failure returns the failed phase holding err.
func Failure[T any](err error) AsyncValue[T] {
	return AsyncValue[T]{status: asyncFailure, err: err}
}

// IsLoading reports whether the value is still loading.
func (v AsyncValue[T]) IsLoading() bool {
	return v.status == asyncLoading
}

// Value returns the loaded data and whether it is present.
func (v AsyncValue[T]) Value() (T, bool) {
	return v.value, v.status == asyncData
}

// Err returns the failure, or nil outside the failed phase.
func (v AsyncValue[T]) Err() error {
	if v.status == asyncFailure {
		return v.err
	}
	return nil
}

// When dispatches on the phase, invoking exactly one of the callbacks.
// Nil callbacks are skipped.
func (v AsyncValue[T]) When(loading func(), data func(T), failure func(error)) {
	switch v.status {
	case asyncData:
		if data != nil {
			data(v.value)
		}
	case asyncFailure:
		if failure != nil {
			failure(v.err)
		}
	default:
		if loading != nil {
			loading()
		}
	}
}

func (v AsyncValue[T]) String() string {
	switch v.status {
	case asyncData:
		return fmt.Sprintf("Data(%v)", v.value)
	case asyncFailure:
		return fmt.Sprintf("Failure(%v)", v.err)
	default:
		return "Loading"
	}
}

// MapAsync converts the loaded value through fn, passing the loading and
// failed phases through unchanged.
func MapAsync[T, R any](v AsyncValue[T], fn func(T) R) AsyncValue[R] {
	switch v.status {
	case asyncData:
		return Data(fn(v.value))
	case asyncFailure:
		return Failure[R](v.err)
	default:
		return Loading[R]()
	}
}
