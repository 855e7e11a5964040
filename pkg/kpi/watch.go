package kpi

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors a KPI config file and calls onChange with the freshly
// loaded Config each time the file is rewritten. It blocks until ctx is
// cancelled.
//
// When a reload fails validation the error is logged and the previous
// config stays active; onChange is not called.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info("kpi: watching config", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create matters as much
			// as Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("kpi: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}

			logger.Info("kpi: config reloaded", "path", path)
			onChange(cfg)

			// An atomic save replaces the inode; re-add the watch.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("kpi: watcher error", "err", err)
		}
	}
}
