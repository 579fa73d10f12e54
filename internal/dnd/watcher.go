package dnd

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// InterruptName is the interrupt name the watcher raises.
const InterruptName = "dnd"

// InterruptSink receives the interrupt. *flow.Scope implements it.
type InterruptSink interface {
	AddInterrupt(scopePath, name string) string
	RemoveInterrupt(id string)
}

// Watcher mirrors the DnD state file onto an interrupt sink.
type Watcher struct {
	watcher   *fsnotify.Watcher
	sink      InterruptSink
	path      string
	scopePath string
	logger    *slog.Logger
	done      chan struct{}

	mu       sync.Mutex
	onChange func(enabled bool)
	running  bool
	activeID string
}

// NewWatcher creates a watcher for the state file at path. While DnD is on,
// an interrupt named InterruptName is held on sink for scopePath.
func NewWatcher(sink InterruptSink, path, scopePath string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:   watcher,
		sink:      sink,
		path:      path,
		scopePath: scopePath,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Sync loads the state file once and applies it. It returns whether DnD
// is on.
func (w *Watcher) Sync() (bool, error) {
	state, err := Load(w.path)
	if err != nil {
		return false, err
	}
	if w.apply(state.Enabled) {
		w.mu.Lock()
		onChange := w.onChange
		w.mu.Unlock()
		if onChange != nil {
			onChange(state.Enabled)
		}
	}
	return state.Enabled, nil
}

// SetChangeCallback sets a function called after DnD was switched on or
// off. It does not run for the state applied by Start.
func (w *Watcher) SetChangeCallback(fn func(enabled bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Active reports whether the watcher currently holds the interrupt.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeID != ""
}

// apply raises or releases the interrupt and reports whether anything
// changed.
func (w *Watcher) apply(enabled bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case enabled && w.activeID == "":
		w.activeID = w.sink.AddInterrupt(w.scopePath, InterruptName)
		w.logger.Info("do not disturb on", "scope_path", w.scopePath)
	case !enabled && w.activeID != "":
		w.sink.RemoveInterrupt(w.activeID)
		w.activeID = ""
		w.logger.Info("do not disturb off", "scope_path", w.scopePath)
	default:
		return false
	}
	return true
}

// Start applies the current state and begins watching the file.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory containing the file (more reliable for atomic writes)
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	if state, err := Load(w.path); err != nil {
		w.logger.Warn("failed to load dnd state", "error", err)
	} else {
		w.apply(state.Enabled)
	}

	go w.watch()
	return nil
}

// watch is the main watch loop.
func (w *Watcher) watch() {
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only care about our file
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug("dnd state changed", "file", w.path, "op", event.Op.String())
				if _, err := w.Sync(); err != nil {
					w.logger.Warn("failed to reload dnd state", "error", err)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("dnd watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Stop stops watching. The interrupt is released if it is held.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	w.apply(false)
	return w.watcher.Close()
}
