package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reports changes to a set of files. Directories containing the
// files are watched so that editors replacing files atomically still
// produce events.
type Watcher struct {
	watcher *fsnotify.Watcher
	files   map[string]struct{}
	delay   time.Duration
	logger  zerolog.Logger
	mu      sync.Mutex
}

// NewWatcher creates a watcher for files. Missing files are skipped with a warning.
func NewWatcher(files []string, delay time.Duration, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if delay == 0 {
		delay = 500 * time.Millisecond
	}

	w := &Watcher{
		watcher: fw,
		files:   make(map[string]struct{}),
		delay:   delay,
		logger:  logger.With().Str("component", "watcher").Logger(),
	}

	dirs := make(map[string]struct{})
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			w.logger.Warn().Err(err).Str("path", abs).Msg("Failed to stat path for watching")
			continue
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch directory")
		}
	}

	return w, nil
}

// Files returns the number of watched files.
func (w *Watcher) Files() int {
	return len(w.files)
}

// Run calls onChange, debounced, whenever a watched file is written or
// created. It blocks until ctx is done and then closes the watcher.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	var timer *time.Timer
	defer func() {
		w.mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, watched := w.files[name]; !watched {
				continue
			}

			w.logger.Debug().
				Str("file", name).
				Str("op", event.Op.String()).
				Msg("Watched file changed")

			w.mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.delay, func() { onChange(name) })
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
