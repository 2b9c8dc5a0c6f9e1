package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the file whenever it changes and calls onChange with every
// valid result. Invalid files are logged and ignored. Watching stops when
// the context is done.
func Watch(ctx context.Context, filename string, logger zerolog.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filename); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filename, err)
	}
	log := logger.With().Str("component", "config").Str("path", filename).Logger()
	log.Debug().Msg("Watching config file")

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				log.Trace().Str("op", event.Op.String()).Msg("Config file changed")
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					config, err := Load(filename)
					if err != nil {
						log.Error().Err(err).Msg("Could not reload config, keeping the previous one")
						return
					}
					log.Info().Msg("Config reloaded")
					onChange(config)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("Config watcher error")
			}
		}
	}()
	return nil
}
