// Package persist defines the persistence boundary used by stores to survive
// process restarts.
//
// A Backend is an opaque key-value service; any implementation satisfying the
// interface (in-memory map, files on disk, a platform preference store) is
// interchangeable. A Codec turns slice values into byte payloads and back, and
// a Binding pairs the two with a storage key.
package persist

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Load when no value exists for the key.
var ErrNotFound = errors.New("persist: key not found")

// Backend is an opaque key-value storage service.
//
// Implementations must be safe for concurrent use: stores save from a
// background worker while loads may happen on the caller's goroutine.
type Backend interface {
	// Save stores data under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error
	// Load returns the data stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
}
