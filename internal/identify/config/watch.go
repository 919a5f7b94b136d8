package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a YAML config file on write, so a long-lived worker
// process can pick up threshold/weight tuning without a restart. Grounded
// on the teacher's fsnotify-driven config reload wiring.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	fw      *fsnotify.Watcher
	onErr   func(error)
	mu      sync.Mutex
	closed  bool
}

// NewWatcher loads path once and begins watching it for changes.
// onErr, if non-nil, is invoked (from the watch goroutine) whenever a
// reload fails to parse; the previously loaded Config is kept in that
// case.
func NewWatcher(path string, onErr func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, onErr: onErr}
	w.current.Store(cfg)

	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.fw = fw

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onErr != nil {
					w.onErr(err)
				}
				continue
			}
			w.current.Store(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.onErr != nil {
				w.onErr(err)
			}
		}
	}
}

// Get returns the most recently loaded Config. Safe for concurrent use.
func (w *Watcher) Get() *Config {
	return w.current.Load()
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.fw == nil {
		w.closed = true
		return nil
	}
	w.closed = true
	return w.fw.Close()
}
