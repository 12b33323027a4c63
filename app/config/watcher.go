package config

import (
	"context"
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watch starts watching the config file for changes and calls onChange on
// every write. Blocks until the context is canceled. Editors replacing the
// file atomically produce rename+create, those count as changes too.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err = watcher.Add(path); err != nil {
		return fmt.Errorf("failed to add %s to watcher: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopping watcher for %s, %v", path, ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Printf("[DEBUG] config change detected: %s", event)
				onChange()
				if event.Op&fsnotify.Rename != 0 {
					// re-add after atomic replace, old inode is gone
					if err := watcher.Add(path); err != nil {
						log.Printf("[WARN] failed to re-add %s to watcher: %v", path, err)
					}
				}
			}
		case e, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] watcher error: %v", e)
		}
	}
}
