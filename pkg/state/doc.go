// Package state provides observable, versioned state containers.
//
// This package defines the foundational types for reactive application state:
// Store, Subscription, Selector, and AsyncValue. A Store holds one immutable
// state value, transitions it through pure reducers, and fans out
// notifications to subscribers when the value actually changes.
//
// # Stores
//
// Create a store with an initial value, mutate it through Update, and observe
// it through Subscribe:
//
//	counter := state.New(0)
//	sub, _ := counter.Subscribe(func(n int) {
//	    fmt.Println("count:", n)
//	})
//	counter.Update(func(n int) (int, error) { return n + 1, nil })
//	counter.Unsubscribe(sub)
//	counter.Dispose()
//
// Subscribers are notified only when the new value differs from the old one
// (structural equality by default, see WithEquals). Subscribing does not
// deliver the current value; call Read first if you need it.
//
// # Persistence
//
// A store survives restarts when given a persistence binding:
//
//	backend, _ := persist.NewDir(dir)
//	binding := persist.Bind(backend, persist.JSON[int](), "counter")
//	counter := state.New(0, state.WithBinding(binding))
//
// Loading happens at creation (falling back to the initial value when the key
// is missing or corrupt); saving happens asynchronously after each accepted
// transition, so notification latency never depends on storage latency.
// Persistence failures are reported through the error handler, never thrown
// at Update callers; in-memory state remains authoritative.
//
// # Selectors
//
// Select derives a read-only, memoized projection from one or more stores:
//
//	doubled, _ := state.Select(counter, func(n int) int { return n * 2 })
//	v, _ := doubled.Read()
//
// # Constructor Conventions
//
// Long-lived, mutable objects (stores, selectors, backends) use NewX()
// constructors returning pointers; value types (AsyncValue, Subscription) are
// plain values.
package state
