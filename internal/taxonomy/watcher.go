package taxonomy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads a scorer when its taxonomy file changes on disk.
type Watcher struct {
	scorer  *Scorer
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given taxonomy file. The file's
// directory is watched (editors replace files rather than rewriting them in
// place, which drops inode-level watches).
func NewWatcher(scorer *Scorer, path string, logger *zap.Logger) (*Watcher, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		scorer:  scorer,
		path:    path,
		logger:  logger,
		watcher: fsw,
	}, nil
}

// Start blocks, reloading on writes to the taxonomy file, until ctx is
// cancelled. Reload failures keep the previous registry and are logged.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.scorer.LoadFile(w.path); err != nil {
				w.logger.Warn("taxonomy reload failed, keeping previous registry",
					zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("taxonomy reloaded", zap.String("path", w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("taxonomy watcher error", zap.Error(err))
		}
	}
}
