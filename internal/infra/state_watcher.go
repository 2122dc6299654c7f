package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StateWatcher signals when the state record changes on disk.
// It watches the parent directory because the file store replaces the
// record by rename, which would drop a watch placed on the file itself.
type StateWatcher struct {
	watcher *fsnotify.Watcher
	names   map[string]bool
	changed chan struct{}
	logger  *zap.Logger
}

// NewStateWatcher creates a watcher for the record at path.
func NewStateWatcher(path string, logger *zap.Logger) (*StateWatcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	base := filepath.Base(path)
	return &StateWatcher{
		watcher: watcher,
		// SQLite commits touch the journal before the database file.
		names:   map[string]bool{base: true, base + "-journal": true, base + "-wal": true},
		changed: make(chan struct{}, 1),
		logger:  logger,
	}, nil
}

// Changes delivers one signal per burst of writes. Signals coalesce while
// nobody is receiving.
func (w *StateWatcher) Changes() <-chan struct{} {
	return w.changed
}

// Run forwards matching events until ctx is cancelled.
func (w *StateWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				select {
				case w.changed <- struct{}{}:
				default:
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("state watcher error", zap.Error(err))
		}
	}
}
