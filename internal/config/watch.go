package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile watches path for writes and re-runs Load on each one, calling
// onReload with the freshly parsed Config. It runs until ctx is cancelled.
// Editors typically replace a file rather than writing it in place (Write
// followed by Rename), so both Write and Create events on the file's
// directory are treated as a reload trigger; a reload that fails to parse
// or validate is logged and skipped, leaving the previous config in effect
// rather than tearing down the caller.
//
// Used by `trio serve` (the CLI's only long-lived process) to pick up
// runtime.security_mode changes without a restart; see
// internal/permissions.Manager.SetMode.
func WatchFile(ctx context.Context, path string, onWarn func(msg string, args ...any), onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					if onWarn != nil {
						onWarn("config reload failed, keeping previous config", "path", path, "error", err)
					}
					continue
				}
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onWarn != nil {
					onWarn("config watcher error", "path", path, "error", err)
				}
			}
		}
	}()

	return nil
}
