package testing

import (
	"context"
	"sync"
	"time"

	"github.com/go-drift/state/pkg/persist"
)

// SaveRecord is one Save call observed by a FakeBackend.
type SaveRecord struct {
	Key  string
	Data []byte
	Err  error // the error returned to the caller, nil on success
}

// FakeBackend is an in-memory persist.Backend with scriptable failures and a
// recorded call history, for asserting on the asynchronous save path.
// All methods are safe for concurrent use.
type FakeBackend struct {
	mu       sync.Mutex
	data     map[string][]byte
	saves    []SaveRecord
	failSave error
	failLoad error
}

// NewFakeBackend returns an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{data: make(map[string][]byte)}
}

// Seed stores data under key without recording a save.
func (b *FakeBackend) Seed(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data[key] = cp
}

// FailSaves makes subsequent Save calls return err. Pass nil to heal.
func (b *FakeBackend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSave = err
}

// FailLoads makes subsequent Load calls return err. Pass nil to heal.
func (b *FakeBackend) FailLoads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLoad = err
}

// Save records the call and stores data unless a failure is scripted.
func (b *FakeBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave != nil {
		b.saves = append(b.saves, SaveRecord{Key: key, Err: b.failSave})
		return b.failSave
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.data[key] = cp
	b.saves = append(b.saves, SaveRecord{Key: key, Data: cp})
	return nil
}

// Load returns the stored data, a scripted failure, or persist.ErrNotFound.
func (b *FakeBackend) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLoad != nil {
		return nil, b.failLoad
	}
	data, ok := b.data[key]
	if !ok {
		return nil, persist.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Saves returns a copy of the recorded save history, including failed calls.
func (b *FakeBackend) Saves() []SaveRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SaveRecord, len(b.saves))
	copy(out, b.saves)
	return out
}

// WaitForSaves polls until at least n Save calls have been recorded or the
// timeout elapses, reporting whether the count was reached. Saves happen on a
// store's persistence worker, so tests need a rendezvous.
func (b *FakeBackend) WaitForSaves(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		count := len(b.saves)
		b.mu.Unlock()
		if count >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
