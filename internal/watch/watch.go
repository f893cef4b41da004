// Package watch re-runs work whenever the Messages database changes on
// disk. Writes land in bursts (the db plus its -wal/-shm siblings), so
// events debounce behind a quiet period before the callback fires.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period applied when Options.Debounce is not
// set.
const DefaultDebounce = 2 * time.Second

// Options configure one watch session.
type Options struct {
	// Path is the database file. Its directory is what is actually
	// watched; events for unrelated files in it are ignored.
	Path string

	// Debounce is the quiet period after the last relevant event before
	// the callback runs.
	Debounce time.Duration

	Logger zerolog.Logger
}

// relevant reports whether an event touches the database or one of its
// sqlite sidecar files.
func relevant(eventName, base string) bool {
	name := filepath.Base(eventName)
	return name == base || name == base+"-wal" || name == base+"-shm"
}

// Watch runs onChange once immediately, then again after every debounced
// burst of database writes. It blocks until ctx is cancelled and returns
// nil on a clean stop.
func Watch(ctx context.Context, opts Options, onChange func(context.Context)) error {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dir := filepath.Dir(opts.Path)
	base := filepath.Base(opts.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	opts.Logger.Info().Str("dir", dir).Dur("debounce", debounce).Msg("watching for database changes")

	onChange(ctx)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event.Name, base) {
				continue
			}
			opts.Logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("database changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() == nil {
					onChange(ctx)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			opts.Logger.Warn().Err(err).Msg("watch error")
		}
	}
}
