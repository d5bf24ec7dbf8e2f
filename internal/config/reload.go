package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultReloadDebounce coalesces the burst of writes editors produce when
// saving a file.
const defaultReloadDebounce = 100 * time.Millisecond

// Reloader watches a configuration file and hands every successfully
// reloaded Config to a callback. Invalid edits are logged and skipped; the
// previous configuration stays in effect.
//
// The containing directory is watched rather than the file itself, so
// editors that save by writing a temporary file and renaming it over the
// original are followed.
type Reloader struct {
	path     string
	logger   *slog.Logger
	onChange func(*Config)
	debounce time.Duration
}

// NewReloader returns a Reloader for path. onChange runs on the Reloader's
// goroutine.
func NewReloader(path string, logger *slog.Logger, onChange func(*Config)) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		path:     filepath.Clean(path),
		logger:   logger,
		onChange: onChange,
		debounce: defaultReloadDebounce,
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
// Cancellation returns nil.
func (r *Reloader) Run(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: reloader: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("config: reloader: watch %q: %w", filepath.Dir(r.path), err)
	}
	r.logger.Debug("watching configuration file", slog.String("path", r.path))

	// A stopped timer with a drained channel; armed on each relevant event.
	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config: reloader: event stream closed")
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(r.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config: reloader: error stream closed")
			}
			r.logger.Warn("configuration watcher error", slog.Any("error", err))

		case <-timer.C:
			r.reload()
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		r.logger.Warn("configuration reload rejected; keeping previous settings",
			slog.String("path", r.path),
			slog.Any("error", err))
		return
	}
	r.logger.Info("configuration reloaded", slog.String("path", r.path))
	if r.onChange != nil {
		r.onChange(cfg)
	}
}
