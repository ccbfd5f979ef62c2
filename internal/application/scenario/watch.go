package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Watch reloads the scenario at path whenever it changes and passes each
// successfully loaded version to onChange. Invalid edits are logged and
// skipped; the previous scenario stays in effect. Watch blocks until ctx is
// done.
// PRE: path's directory exists
// POST: Returns ctx.Err() on cancellation, or a watcher setup error
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(Scenario)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory and filter by name.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Info("scenario_event", "event", "watching", "path", abs)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			sc, err := Load(abs)
			if err != nil {
				slog.Warn("scenario_event", "event", "reload_failed", "path", abs, "error", err.Error())
				continue
			}
			slog.Info("scenario_event", "event", "reloaded", "path", abs, "name", sc.Name)
			onChange(sc)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("scenario_event", "event", "watch_error", "error", err.Error())
		}
	}
}
