package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher applies schema files as they are created or changed in a directory.
type Watcher struct {
	registry *Registry
	dir      string
	logger   *slog.Logger

	// applied receives every successfully applied definition. Optional.
	applied chan<- *Definition
}

// NewWatcher creates a Watcher for dir. If applied is non-nil, each
// successfully applied definition is sent to it.
func NewWatcher(registry *Registry, dir string, logger *slog.Logger, applied chan<- *Definition) *Watcher {
	return &Watcher{
		registry: registry,
		dir:      dir,
		logger:   logger,
		applied:  applied,
	}
}

// Run watches the directory until ctx is done. Files that fail to parse or
// register are logged and skipped; the watcher keeps running.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating schema watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching schema dir: %w", err)
	}

	w.logger.Info("watching schema dir", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsSchemaFile(event.Name) {
				continue
			}
			w.apply(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("schema watcher error", "error", err)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, path string) {
	f, err := LoadFile(path)
	if err != nil {
		w.logger.Warn("skipping schema file", "path", path, "error", err)
		return
	}

	def, err := w.registry.Apply(ctx, f)
	if err != nil {
		w.logger.Warn("schema file rejected", "path", path, "error", err)
		return
	}

	w.logger.Debug("schema file applied", "path", path, "type", def.Type, "version", def.Version)

	if w.applied != nil {
		select {
		case w.applied <- def:
		case <-ctx.Done():
		}
	}
}
