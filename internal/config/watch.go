package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config whenever the file changes and hands each valid
// new config to onChange. Invalid edits are logged and skipped, keeping the
// last good config in effect. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself, so
// write-then-rename editors and config-map style symlink swaps still
// produce events.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, loadErr := Load(path)
			if loadErr != nil {
				logger.Error("config reload rejected, keeping previous", "path", path, "error", loadErr)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", watchErr)
		}
	}
}
