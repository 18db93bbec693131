package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/dronefleet/orchestrator/internal/logx"
)

// Watcher live-reloads config.yaml on change, mirroring the teacher's
// Daemon.fsnotifyLoop (watch the containing directory rather than the file
// itself, since editors often replace a file rather than writing it
// in-place, which a direct file watch would miss).
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	log      *logx.Logger
	onChange func(Config)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher arms an fsnotify watch on the directory containing path.
// onChange is invoked with the freshly loaded and validated Config whenever
// the file changes; load errors are logged and the previous config is kept.
func NewWatcher(path string, log *logx.Logger, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{path: filepath.Clean(path), watcher: fsw, log: log, onChange: onChange}, nil
}

// Start runs the watch loop until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config_reload_failed path=%s error=%v", w.path, err)
				continue
			}
			w.log.Info("config_reloaded path=%s", w.path)
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config_watch_error error=%v", err)
		}
	}
}

// Stop cancels the watch loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.watcher.Close()
}
