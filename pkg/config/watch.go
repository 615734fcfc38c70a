package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// WatchFile watches path for changes and sends a debounced signal on the
// returned channel, grounded on the teacher's config provider FileProvider
// (directory-level watch, since some filesystems don't support watching a
// single file directly; a 100ms debounce coalesces rapid saves).
func WatchFile(ctx context.Context, path string) (<-chan struct{}, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, swarmerrors.NewConfigError("config", "path", err.Error(), err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, swarmerrors.NewConfigError("config", "watch", err.Error(), err)
	}

	dir := filepath.Dir(absPath)
	file := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, swarmerrors.NewConfigError("config", "watch", err.Error(), err)
	}

	ch := make(chan struct{}, 1)
	go watchLoop(ctx, watcher, file, ch)
	return ch, nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, file string, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	const debounceDelay = 100 * time.Millisecond
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					select {
					case ch <- struct{}{}:
					default:
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config file watcher error", "error", err)
		}
	}
}
