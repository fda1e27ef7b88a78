package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/fsnotify.v1"

	"github.com/coolbeans/regparser/pkg/logging"
)

// Watcher keeps a Config current with its file. A reload that fails to
// parse or validate is logged and the previous configuration stays in
// effect.
type Watcher struct {
	mu          sync.RWMutex
	path        string
	current     *Config
	logger      *slog.Logger
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	subscribers []func(*Config)
}

// NewWatcher loads path and returns a watcher for it. Call Watch to start
// following changes.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	config, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:    filepath.Clean(path),
		current: config,
		logger:  logging.OrDiscard(logger),
	}, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers fn to be called with every successfully reloaded
// configuration.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Watch starts following the file. The containing directory is watched so
// that editors replacing the file by rename are noticed.
func (w *Watcher) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.watcher = watcher
	w.stopChan = make(chan struct{})

	go w.watchLoop(watcher, w.stopChan)

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.watcher.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	return nil
}

func (w *Watcher) watchLoop(watcher *fsnotify.Watcher, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create,
				event.Op&fsnotify.Write == fsnotify.Write:
				w.reload()
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				w.logger.Info("config file removed, keeping current settings", "path", w.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "path", w.path, "error", err)
		}
	}
}

// reload re-reads the file and notifies subscribers on success.
func (w *Watcher) reload() {
	config, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = config
	subscribers := slices.Clone(w.subscribers)
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	for _, fn := range subscribers {
		fn(config)
	}
}

// Stop ends watching.
func (w *Watcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
		w.stopChan = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
