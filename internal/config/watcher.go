package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wudi/urlforward/internal/logging"
)

// Watcher watches the route and defaults files and notifies callbacks after
// a burst of changes settles.
type Watcher struct {
	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	files     map[string]bool
	dirs      map[string]bool
	callbacks []func()
	debounce  time.Duration
	timer     *time.Timer
	done      chan struct{}
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for files.
func NewWatcher(files []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	if err := w.SetFiles(files); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// OnChange registers a callback for file changes
func (w *Watcher) OnChange(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// SetFiles replaces the watched file set. Glob patterns may match a
// different set after a reload, so callers refresh it after each load.
func (w *Watcher) SetFiles(files []string) error {
	set := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		set[abs] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = set
	// Directories are watched so editors that replace files are seen.
	for f := range set {
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	return nil
}

// Start begins watching for changes
func (w *Watcher) Start() {
	go w.watch()
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.watched(event.Name) {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("route file watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) watched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.notify)
}

func (w *Watcher) notify() {
	w.mu.Lock()
	callbacks := make([]func(), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	logging.Debug("route files changed")
	for _, cb := range callbacks {
		cb()
	}
}

// Stop stops watching for changes
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

// SetDebounce sets the debounce duration for file changes
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}
