package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces editor write bursts into one reload.
const debounceInterval = 250 * time.Millisecond

// Watcher reloads configuration when the project or user config file
// changes on disk.
type Watcher struct {
	dir      string
	onReload func(*Config)
	logger   *slog.Logger

	fsw *fsnotify.Watcher
}

// NewWatcher creates a config watcher for the given project directory.
// onReload is called with the freshly loaded config after each change that
// survives validation. Invalid edits are logged and ignored, keeping the
// last good config in effect.
func NewWatcher(dir string, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		dir:      dir,
		onReload: onReload,
		logger:   logger,
		fsw:      fsw,
	}

	// Watch the containing directories rather than the files themselves so
	// that atomic saves (write temp, rename over) keep being observed.
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if userDir := GetUserConfigDir(); dirExists(userDir) {
		if err := fsw.Add(userDir); err != nil {
			w.logger.Warn("cannot watch user config directory", "dir", userDir, "error", err)
		}
	}

	return w, nil
}

// Start runs the watch loop until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isConfigFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(debounceInterval)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) isConfigFile(path string) bool {
	base := filepath.Base(path)
	switch base {
	case ".vidfuse.yaml", ".vidfuse.yml":
		return true
	}
	return path == GetUserConfigPath()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		w.logger.Warn("config change ignored", "error", err)
		return
	}
	w.logger.Info("configuration reloaded", "dir", w.dir)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
