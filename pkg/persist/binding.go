package persist

import (
	"context"
	"fmt"
)

// Binding pairs a Backend, a Codec, and a storage key for one store slice.
//
// A store with a binding loads its initial value through Load at creation and
// writes accepted transitions through Save from its persistence worker.
type Binding[T any] struct {
	Backend Backend
	Codec   Codec[T]
	Key     string
}

// Bind constructs a Binding.
func Bind[T any](backend Backend, codec Codec[T], key string) *Binding[T] {
	return &Binding[T]{Backend: backend, Codec: codec, Key: key}
}

// Load reads and decodes the stored value.
// Returns ErrNotFound (wrapped) when the key has never been saved.
func (b *Binding[T]) Load(ctx context.Context) (T, error) {
	var zero T
	data, err := b.Backend.Load(ctx, b.Key)
	if err != nil {
		return zero, fmt.Errorf("load %q: %w", b.Key, err)
	}
	v, err := b.Codec.Decode(data)
	if err != nil {
		return zero, fmt.Errorf("decode %q: %w", b.Key, err)
	}
	return v, nil
}

// Save encodes and stores the value.
func (b *Binding[T]) Save(ctx context.Context, v T) error {
	data, err := b.Codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", b.Key, err)
	}
	if err := b.Backend.Save(ctx, b.Key, data); err != nil {
		return fmt.Errorf("save %q: %w", b.Key, err)
	}
	return nil
}
