package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/alertflow/internal/config"
)

// DelaySetter receives the disappearing delay of a reloaded config.
// *flow.Registry and *flow.Scope implement it.
type DelaySetter interface {
	SetDelay(d time.Duration)
}

// ConfigWatcher follows the config file and applies the settings that can
// change while serving: the log level and the disappearing delay. Anything
// else in a reloaded config only reaches the reload callback.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  *slog.Logger
	done    chan struct{}

	mu       sync.Mutex
	current  *config.Config
	level    *slog.LevelVar
	delays   DelaySetter
	onReload func(*config.Config)
	onError  func(error)
	running  bool
}

// NewConfigWatcher creates a watcher for the config file at path, starting
// from initial. An empty path means config.ConfigPath().
func NewConfigWatcher(path string, initial *config.Config, logger *slog.Logger) (*ConfigWatcher, error) {
	if path == "" {
		path = config.ConfigPath()
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		watcher: watcher,
		path:    path,
		logger:  logger,
		done:    make(chan struct{}),
		current: initial,
	}, nil
}

// SetLevelVar makes reloads set the log level on lv. A nil lv leaves the
// level alone, which is what --verbose wants.
func (w *ConfigWatcher) SetLevelVar(lv *slog.LevelVar) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.level = lv
}

// SetDelaySetter makes reloads push the disappearing delay to d.
func (w *ConfigWatcher) SetDelaySetter(d DelaySetter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delays = d
}

// SetReloadCallback sets a function called after a valid config was
// applied.
func (w *ConfigWatcher) SetReloadCallback(fn func(*config.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// SetErrorCallback sets a function called when a changed config fails to
// load. The previous config stays in effect.
func (w *ConfigWatcher) SetErrorCallback(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Current returns the config in effect.
func (w *ConfigWatcher) Current() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload loads the config file and applies it. serve also calls it on
// SIGHUP.
func (w *ConfigWatcher) Reload() error {
	next, err := config.LoadConfig(w.path)

	w.mu.Lock()
	onReload, onError := w.onReload, w.onError
	if err == nil {
		w.current = next
		w.apply(next)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		if onError != nil {
			onError(err)
		}
		return err
	}

	w.logger.Info("config reloaded", "path", w.path,
		"disappearing_delay", next.Display.DisappearingDelay.Duration(), "log_level", next.Log.Level)
	if onReload != nil {
		onReload(next)
	}
	return nil
}

// apply pushes the live settings of c. Callers hold w.mu.
func (w *ConfigWatcher) apply(c *config.Config) {
	if w.level != nil {
		if level, err := c.LogLevel(); err == nil {
			w.level.Set(level)
		}
	}
	if w.delays != nil {
		w.delays.SetDelay(c.ScopeDelay())
	}
}

// Start begins watching. The directory is watched rather than the file so
// that editors replacing the file are noticed too.
func (w *ConfigWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go w.watch()
	w.logger.Debug("config watcher started", "path", w.path)
	return nil
}

func (w *ConfigWatcher) watch() {
	filename := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			// A removed config is ignored rather than reset to defaults.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("config file changed", "op", event.Op.String())
				_ = w.Reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	return w.watcher.Close()
}
