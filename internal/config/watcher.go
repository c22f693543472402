package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HotReloadConfig controls the config file watcher.
type HotReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Watcher reloads a config file whenever it (or an $include target it was
// last loaded with) changes on disk, debounced the same way the teacher
// debounces skill-directory refreshes.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config, error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	paths   map[string]struct{}
}

// NewWatcher creates a watcher for the config file at path. onReload is
// called with the freshly loaded config, or a non-nil error if the reload
// failed, every time a watched file settles after debounce.
func NewWatcher(path string, cfg HotReloadConfig, onReload func(*Config, error)) *Watcher {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{path: path, debounce: debounce, onReload: onReload, paths: make(map[string]struct{})}
}

// Start begins watching until ctx is canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	debounce := w.debounce
	w.mu.Unlock()

	w.refreshWatches()

	w.wg.Add(1)
	go w.watchLoop(watchCtx, debounce)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fsw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if fsw != nil {
		_ = fsw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context, debounce time.Duration) {
	defer w.wg.Done()
	w.mu.Lock()
	fsw := w.watcher
	w.mu.Unlock()
	if fsw == nil {
		return
	}

	var timerMu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			w.refreshWatches()
			cfg, err := Load(w.path)
			if w.onReload != nil {
				w.onReload(cfg, err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// refreshWatches watches the config file's directory, since editors
// typically replace the file (rename/write-new, not write-in-place) rather
// than writing to the inode fsnotify originally opened.
func (w *Watcher) refreshWatches() {
	dir := filepath.Dir(w.path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	if _, ok := w.paths[dir]; ok {
		return
	}
	if err := w.watcher.Add(dir); err == nil {
		w.paths[dir] = struct{}{}
	}
}
