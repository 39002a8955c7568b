package rules

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 100 * time.Millisecond

// Watcher reloads the store when either rule file changes on disk and
// notifies listeners after each reload. Editors tend to emit bursts of
// write events, so reloads are debounced per path.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	timers    map[string]*time.Timer
	listeners []func()
	stopped   bool
}

func NewWatcher(store *Store) *Watcher {
	return &Watcher{
		store:  store,
		timers: make(map[string]*time.Timer),
	}
}

// OnChange registers fn to run after each reload.
func (w *Watcher) OnChange(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins watching the directories containing both rule files. A
// directory that does not exist yet is skipped; the other file still hot
// reloads.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	for _, dir := range []string{filepath.Dir(w.store.AgentPath()), filepath.Dir(w.store.ProjectPath())} {
		if err := watcher.Add(dir); err != nil {
			slog.Debug("rules directory not watchable", "dir", dir, "error", err)
		}
	}

	go w.eventLoop()
	return nil
}

// Stop closes the underlying watcher and cancels pending reloads.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()

	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("rules watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if path != w.store.AgentPath() && path != w.store.ProjectPath() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceInterval, func() {
		w.mu.Lock()
		delete(w.timers, path)
		stopped := w.stopped
		listeners := make([]func(), len(w.listeners))
		copy(listeners, w.listeners)
		w.mu.Unlock()

		if stopped {
			return
		}
		w.store.Reload()
		slog.Info("permission rules reloaded", "path", path)
		for _, fn := range listeners {
			fn()
		}
	})
}
