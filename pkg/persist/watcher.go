package persist

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/go-drift/state/pkg/errors"
)

// Watcher observes a Dir backend for external modifications and invokes a
// callback per changed key. It pairs with Store.Reload to pick up state
// written by another process.
//
// Events are debounced per key so an editor's write-then-rename sequence
// produces one callback. The backend's own atomic saves also surface as
// events; callers that both save and watch the same key should expect
// callbacks for their own writes.
type Watcher struct {
	dir      *Dir
	watcher  *fsnotify.Watcher
	onChange func(key string)
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	keys   map[string]string // slug -> original key
	done   chan struct{}
	closed bool
}

// NewWatcher creates a watcher over the backend's root directory.
// onChange is invoked from the watcher's goroutine for each Watch-ed key
// whose file changes.
func NewWatcher(dir *Dir, onChange func(key string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		watcher:  fsw,
		onChange: onChange,
		debounce: 200 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		keys:     make(map[string]string),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers interest in a key. Changes to keys never registered are
// ignored.
func (w *Watcher) Watch(key string) {
	w.mu.Lock()
	w.keys[keySlug(key)+".bin"] = key
	w.mu.Unlock()
}

// Unwatch removes interest in a key.
func (w *Watcher) Unwatch(key string) {
	w.mu.Lock()
	delete(w.keys, keySlug(key)+".bin")
	w.mu.Unlock()
}

// Close stops the watcher and cancels pending debounced callbacks.
// It is idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			errors.Report(&errors.StateError{
				Op:   "persist.Watcher",
				Kind: errors.KindWatch,
				Err:  err,
			})
		}
	}
}

// schedule debounces a change to path and fires the callback for its key.
func (w *Watcher) schedule(path string) {
	name := baseName(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	key, ok := w.keys[name]
	if !ok {
		return
	}
	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		closed := w.closed
		delete(w.timers, name)
		w.mu.Unlock()
		if closed {
			return
		}
		// The callback is caller code running on a timer goroutine; a panic
		// here would take down the process.
		defer errors.Recover("persist.Watcher.onChange")
		w.onChange(key)
	})
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
