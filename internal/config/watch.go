package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/padmon/pkg/logger"
)

// Watch reloads path whenever it is written and hands the new Config to
// onChange. A reload that fails keeps the previous config. The parent
// directory is watched so atomic saves (rename over the file) are seen.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func(*Config)) error {
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info(ctx, "watching config", logger.String("path", abs))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(abs)
			if err != nil {
				log.Error(ctx, "config reload failed, keeping previous config", logger.String("path", abs), logger.Error(err))
				continue
			}
			log.Info(ctx, "config reloaded", logger.String("path", abs))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "config watcher error", logger.Error(err))
		}
	}
}
