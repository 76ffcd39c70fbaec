package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mantonx/videoclipper/internal/logger"
)

// DefaultDebounce is how long Watch waits for writes to settle before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the configuration whenever the file it was loaded from
// changes, until ctx is cancelled. The parent directory is watched so that
// editors replacing the file by rename are picked up. Reload failures are
// logged and the previous configuration stays active.
func (cm *ConfigManager) Watch(ctx context.Context, debounce time.Duration) error {
	path := cm.Path()
	if path == "" {
		return fmt.Errorf("no config path set")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go cm.watchLoop(ctx, watcher, abs, path, debounce)
	return nil
}

func (cm *ConfigManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, abs, path string, debounce time.Duration) {
	defer watcher.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if name, _ := filepath.Abs(event.Name); name != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := cm.LoadConfig(path); err != nil {
					logger.Warn("config reload failed", "path", path, "error", err)
					return
				}
				logger.Info("configuration reloaded", "path", path)
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// Watch starts watching the global configuration file
func Watch(ctx context.Context) error {
	return GetConfigManager().Watch(ctx, DefaultDebounce)
}
