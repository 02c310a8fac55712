package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Change is a successfully reloaded configuration.
type Change struct {
	Config *Config
	// Stages lists the stages whose configuration changed.
	Stages []string
}

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	path     string
	current  *Config
	debounce time.Duration
	load     func(string) (*Config, error)
	logger   logging.Logger
}

// NewWatcher creates a watcher for path. current is the configuration
// changes are compared against.
func NewWatcher(path string, current *Config, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Watcher{
		path:     path,
		current:  current,
		debounce: DefaultDebounce,
		load:     Load,
		logger:   logger.With(logging.Component("config-watcher")),
	}
}

// Watch blocks until ctx is done, calling fn after every successful
// reload. A file that fails to load or validate is
// logged and ignored; the previous configuration stays current.
func (w *Watcher) Watch(ctx context.Context, fn func(Change)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	// Editors replace files by rename, so the directory is watched.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)
	w.logger.Info("Watching configuration", logging.F("path", target))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logging.Err(err))

		case <-timer.C:
			w.reload(fn)
		}
	}
}

func (w *Watcher) reload(fn func(Change)) {
	next, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("Ignoring invalid configuration", logging.Err(err))
		return
	}
	changed := ChangedStages(w.current, next)
	w.current = next
	w.logger.Info("Configuration reloaded", logging.F("changed_stages", changed))
	fn(Change{Config: next, Stages: changed})
}
