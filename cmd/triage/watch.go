package main

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// watchInbox signals on the returned channel when a file is created in or
// written to dir. Signals coalesce while a batch is running. The watcher
// stops when ctx ends.
func watchInbox(ctx context.Context, dir string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	wake := make(chan struct{}, 1)
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
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("inbox watcher error", "dir", dir, "err", err)
			}
		}
	}()
	return wake, nil
}
