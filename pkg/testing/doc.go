// Package testing provides test doubles for code built on stores:
// a scriptable persistence backend, an observer recorder, and an error
// handler that captures reports instead of logging them.
//
// Import it with an alias to avoid shadowing the standard library:
//
//	statetest "github.com/go-drift/state/pkg/testing"
package testing
