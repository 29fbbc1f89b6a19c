package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"dripfeed/internal/logging"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its file is written, created, or
// replaced, until ctx is done. The parent directory is watched so editors that
// save by rename are handled.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(c.path)

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			if err := c.Reload(); err != nil {
				logging.WarnWithContext(c.logger, "catalog reload failed; keeping previous entries", "catalog_reload_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the JSON in "+c.path),
				)
				continue
			}
			c.logger.Info("catalog reloaded",
				logging.String(logging.FieldEventType, "catalog_reloaded"),
				logging.Int("apps", len(c.Apps())),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("catalog watcher error", logging.Error(err))
		}
	}
}
