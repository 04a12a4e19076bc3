package state

import (
	"context"
	"sync"
)

// Watch returns a channel view over the store, layered on Subscribe.
//
// The channel receives each accepted transition's value. It has a buffer of
// one and latest-wins semantics: when the receiver lags, intermediate values
// are dropped and only the most recent state is delivered, matching what a
// rendering layer needs. The channel closes when ctx is canceled or the store
// is disposed; the returned Subscription can also be passed to Unsubscribe to
// stop delivery early (the channel then stays open until ctx ends).
func (s *Store[T]) Watch(ctx context.Context) (<-chan T, Subscription, error) {
	out := make(chan T, 1)

	var mu sync.Mutex
	closed := false

	sub, err := s.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case out <- v:
				return
			default:
				// Receiver lagging: replace the buffered value.
				select {
				case <-out:
				default:
				}
			}
		}
	})
	if err != nil {
		return nil, Subscription{}, err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.Unsubscribe(sub)
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, sub, nil
}
