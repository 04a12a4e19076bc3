package state

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/go-drift/state/pkg/persist"
	statetest "github.com/go-drift/state/pkg/testing"
)

func increment(n int) (int, error) { return n + 1, nil }

func TestUpdateAdvancesValueAndVersion(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	for i := 0; i < 3; i++ {
		if _, err := s.Update(increment); err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got != 3 {
		t.Errorf("Read() = %d, want 3", got)
	}
	if s.Version() != 3 {
		t.Errorf("Version() = %d, want 3", s.Version())
	}
}

func TestUpdateReturnsNext(t *testing.T) {
	s := New(10)
	defer s.Dispose()

	next, err := s.Update(increment)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if next != 11 {
		t.Errorf("Update returned %d, want 11", next)
	}
}

func TestNoOpUpdate(t *testing.T) {
	s := New(5)
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(rec.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	got, err := s.Update(func(n int) (int, error) { return n, nil })
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if got != 5 {
		t.Errorf("Update returned %d, want 5", got)
	}
	if s.Version() != 0 {
		t.Errorf("no-op update bumped version to %d", s.Version())
	}
	if rec.Len() != 0 {
		t.Errorf("no-op update notified %d observers, want 0", rec.Len())
	}
}

func TestReducerErrorLeavesStateUntouched(t *testing.T) {
	s := New(7)
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(rec.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	boom := stderrors.New("boom")
	_, err := s.Update(func(n int) (int, error) { return 0, boom })
	if err == nil {
		t.Fatal("expected an error from the failing reducer")
	}
	var rerr *ReducerError
	if !stderrors.As(err, &rerr) {
		t.Fatalf("expected *ReducerError, got %T", err)
	}
	if !stderrors.Is(err, boom) {
		t.Error("errors.Is should find the reducer's error")
	}

	got, _ := s.Read()
	if got != 7 {
		t.Errorf("failed reducer mutated state to %d", got)
	}
	if s.Version() != 0 {
		t.Errorf("failed reducer bumped version to %d", s.Version())
	}
	if rec.Len() != 0 {
		t.Errorf("failed reducer notified %d observers", rec.Len())
	}
}

func TestSubscribeDoesNotDeliverCurrentValue(t *testing.T) {
	s := New(42)
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(rec.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	if rec.Len() != 0 {
		t.Errorf("Subscribe delivered the current value: %v", rec.Values())
	}
}

func TestFanOutNotifiesAllObserversOnce(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	a := statetest.NewRecorder[int]()
	b := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(a.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	if _, err := s.Subscribe(b.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	for name, rec := range map[string]*statetest.Recorder[int]{"a": a, "b": b} {
		values := rec.Values()
		if len(values) != 1 || values[0] != 1 {
			t.Errorf("observer %s received %v, want [1]", name, values)
		}
	}
}

func TestSubscriptionPredicate(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	_, err := s.Subscribe(rec.Observe, When(func(old, next int) bool { return next%2 == 0 }))
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	for target := 1; target <= 4; target++ {
		v := target
		if _, err := s.Update(func(int) (int, error) { return v, nil }); err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
	}

	values := rec.Values()
	if len(values) != 2 || values[0] != 2 || values[1] != 4 {
		t.Errorf("predicate observer received %v, want [2 4]", values)
	}
}

func TestObserverPanicDoesNotInterruptFanOut(t *testing.T) {
	capture := statetest.NewCaptureHandler()
	s := New(0, WithHandler[int](capture))
	defer s.Dispose()

	panicky, err := s.Subscribe(func(int) { panic("observer bug") })
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	rec := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(rec.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if rec.Len() != 1 {
		t.Errorf("healthy observer received %d notifications, want 1", rec.Len())
	}
	errs := capture.Errors()
	if len(errs) != 1 {
		t.Fatalf("captured %d errors, want 1", len(errs))
	}
	if errs[0].Handle != panicky.String() {
		t.Errorf("error tagged with handle %q, want %q", errs[0].Handle, panicky.String())
	}
	if errs[0].StackTrace == "" {
		t.Error("observer panic report should carry a stack trace")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	sub, err := s.Subscribe(rec.Observe)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	s.Unsubscribe(sub)
	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if rec.Len() != 0 {
		t.Errorf("unsubscribed observer received %v", rec.Values())
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	sub, err := s.Subscribe(func(int) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	s.Unsubscribe(sub)
	// Second removal and a zero handle are both no-ops.
	s.Unsubscribe(sub)
	s.Unsubscribe(Subscription{})
}

func TestDisposedStore(t *testing.T) {
	s := New(0)
	stale, err := s.Subscribe(func(int) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose returned error: %v", err)
	}

	if _, err := s.Read(); !stderrors.Is(err, ErrDisposed) {
		t.Errorf("Read after dispose returned %v, want ErrDisposed", err)
	}
	if _, err := s.Update(increment); !stderrors.Is(err, ErrDisposed) {
		t.Errorf("Update after dispose returned %v, want ErrDisposed", err)
	}
	if _, err := s.Subscribe(func(int) {}); !stderrors.Is(err, ErrDisposed) {
		t.Errorf("Subscribe after dispose returned %v, want ErrDisposed", err)
	}
	if _, err := s.Reload(context.Background()); !stderrors.Is(err, ErrDisposed) {
		t.Errorf("Reload after dispose returned %v, want ErrDisposed", err)
	}

	s.Unsubscribe(stale) // must not panic

	if err := s.Dispose(); err != nil {
		t.Errorf("second Dispose returned %v, want nil", err)
	}
}

func TestNewLoadsPersistedValue(t *testing.T) {
	backend := statetest.NewFakeBackend()
	data, err := persist.JSON[int]().Encode(9)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	backend.Seed("counter", data)

	s := New(0, WithBinding(persist.Bind(backend, persist.JSON[int](), "counter")))
	defer s.Dispose()

	got, _ := s.Read()
	if got != 9 {
		t.Errorf("Read() = %d, want the persisted 9", got)
	}
}

func TestNewMissingKeyFallsBackSilently(t *testing.T) {
	capture := statetest.NewCaptureHandler()
	backend := statetest.NewFakeBackend()

	s := New(3,
		WithBinding(persist.Bind(backend, persist.JSON[int](), "counter")),
		WithHandler[int](capture),
	)
	defer s.Dispose()

	got, _ := s.Read()
	if got != 3 {
		t.Errorf("Read() = %d, want the initial 3", got)
	}
	if len(capture.Errors()) != 0 {
		t.Errorf("a missing key was reported as an error: %v", capture.Errors())
	}
}

func TestNewLoadFailureFallsBackAndReports(t *testing.T) {
	capture := statetest.NewCaptureHandler()
	backend := statetest.NewFakeBackend()
	backend.FailLoads(stderrors.New("disk on fire"))

	s := New(3,
		WithBinding(persist.Bind(backend, persist.JSON[int](), "counter")),
		WithHandler[int](capture),
	)
	defer s.Dispose()

	got, _ := s.Read()
	if got != 3 {
		t.Errorf("Read() = %d, want the initial 3", got)
	}
	errs := capture.Errors()
	if len(errs) != 1 {
		t.Fatalf("captured %d errors, want 1", len(errs))
	}
	if errs[0].Key != "counter" {
		t.Errorf("error carries key %q, want %q", errs[0].Key, "counter")
	}
}

func TestUpdatePersistsAsynchronously(t *testing.T) {
	backend := statetest.NewFakeBackend()
	codec := persist.JSON[int]()

	s := New(0, WithBinding(persist.Bind(backend, codec, "counter")))
	defer s.Dispose()

	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !backend.WaitForSaves(1, time.Second) {
		t.Fatal("timed out waiting for the asynchronous save")
	}

	saves := backend.Saves()
	last := saves[len(saves)-1]
	got, err := codec.Decode(last.Data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got != 1 {
		t.Errorf("persisted %d, want 1", got)
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	capture := statetest.NewCaptureHandler()
	backend := statetest.NewFakeBackend()
	backend.FailSaves(stderrors.New("readonly filesystem"))

	s := New(0,
		WithBinding(persist.Bind(backend, persist.JSON[int](), "counter")),
		WithHandler[int](capture),
	)
	defer s.Dispose()

	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, _ := s.Read()
	if got != 1 {
		t.Errorf("Read() = %d, want 1 despite the save failure", got)
	}
	if !capture.WaitForErrors(1, time.Second) {
		t.Fatal("timed out waiting for the save failure report")
	}
	errs := capture.Errors()
	if errs[0].Key != "counter" {
		t.Errorf("error carries key %q, want %q", errs[0].Key, "counter")
	}
}

func TestDisposeFlushesPendingSave(t *testing.T) {
	backend := statetest.NewFakeBackend()
	codec := persist.JSON[int]()

	s := New(0, WithBinding(persist.Bind(backend, codec, "counter")))
	if _, err := s.Update(increment); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose returned error: %v", err)
	}

	data, err := backend.Load(context.Background(), "counter")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got != 1 {
		t.Errorf("flushed value is %d, want 1", got)
	}
}

func TestReloadAppliesPersistedValue(t *testing.T) {
	backend := statetest.NewFakeBackend()
	codec := persist.JSON[int]()

	s := New(0, WithBinding(persist.Bind(backend, codec, "counter")))
	defer s.Dispose()

	rec := statetest.NewRecorder[int]()
	if _, err := s.Subscribe(rec.Observe); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	// Another process writes a new value behind the store's back.
	data, err := codec.Encode(25)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	backend.Seed("counter", data)

	got, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if got != 25 {
		t.Errorf("Reload returned %d, want 25", got)
	}
	if s.Version() != 1 {
		t.Errorf("Version() = %d, want 1", s.Version())
	}
	values := rec.Values()
	if len(values) != 1 || values[0] != 25 {
		t.Errorf("observer received %v, want [25]", values)
	}

	// Reloading the same value again is a no-op.
	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if s.Version() != 1 {
		t.Errorf("no-op reload bumped version to %d", s.Version())
	}
}

// deadlineProbeBackend records whether each Load call's context carried a
// deadline.
type deadlineProbeBackend struct {
	mu        sync.Mutex
	deadlines []bool
}

func (b *deadlineProbeBackend) Save(ctx context.Context, key string, data []byte) error {
	return nil
}

func (b *deadlineProbeBackend) Load(ctx context.Context, key string) ([]byte, error) {
	_, ok := ctx.Deadline()
	b.mu.Lock()
	b.deadlines = append(b.deadlines, ok)
	b.mu.Unlock()
	return []byte("7"), nil
}

func TestReloadBoundsUndeadlinedContext(t *testing.T) {
	backend := &deadlineProbeBackend{}
	s := New(0, WithBinding(persist.Bind(backend, persist.JSON[int](), "counter")))
	defer s.Dispose()

	if _, err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	backend.mu.Lock()
	deadlines := append([]bool(nil), backend.deadlines...)
	backend.mu.Unlock()

	if len(deadlines) != 2 {
		t.Fatalf("recorded %d loads, want 2 (create + reload)", len(deadlines))
	}
	if !deadlines[0] {
		t.Error("the load at creation ran without a deadline")
	}
	if !deadlines[1] {
		t.Error("Reload with a background context ran without a deadline")
	}
}

func TestReloadWithoutBinding(t *testing.T) {
	s := New(4)
	defer s.Dispose()

	got, err := s.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if got != 4 {
		t.Errorf("Reload returned %d, want the current 4", got)
	}
}

func TestConcurrentUpdatesAreSerialized(t *testing.T) {
	s := New(0)
	defer s.Dispose()

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if _, err := s.Update(increment); err != nil {
					t.Errorf("Update returned error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	const want = goroutines * perGoroutine
	got, _ := s.Read()
	if got != want {
		t.Errorf("Read() = %d, want %d (lost updates)", got, want)
	}
	if s.Version() != want {
		t.Errorf("Version() = %d, want %d", s.Version(), want)
	}
}

func TestCustomEquality(t *testing.T) {
	type point struct{ X, Y int }

	// Equality on X only: moving Y is treated as a no-op.
	s := New(point{X: 1, Y: 1}, WithEquals(func(a, b point) bool { return a.X == b.X }))
	defer s.Dispose()

	if _, err := s.Update(func(p point) (point, error) { return point{X: 1, Y: 9}, nil }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if s.Version() != 0 {
		t.Errorf("X-equal update bumped version to %d", s.Version())
	}

	if _, err := s.Update(func(p point) (point, error) { return point{X: 2, Y: 9}, nil }); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if s.Version() != 1 {
		t.Errorf("Version() = %d, want 1", s.Version())
	}
}
