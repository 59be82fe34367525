package static

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rhuss/ember/pkg/debug"
	"github.com/rhuss/ember/pkg/routing"
)

// rebuildDebounce collapses bursts of file events into one table build.
const rebuildDebounce = 100 * time.Millisecond

// Watcher rebuilds a dispatcher's route table whenever files appear in or
// disappear from a mounted directory. Content changes alone do not
// rebuild: the resulting table would have the same fingerprint.
type Watcher struct {
	mounts     []Mount
	base       []routing.Controller
	dispatcher *routing.Dispatcher
	logger     *slog.Logger
	watcher    *fsnotify.Watcher
}

// NewWatcher creates a watcher for mounts. Every rebuilt table contains
// the base controllers followed by the mounts' controllers.
func NewWatcher(d *routing.Dispatcher, mounts []Mount, base []routing.Controller, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{mounts: mounts, base: base, dispatcher: d, logger: logger}
}

// Build scans the mounts and compiles a table with the base controllers.
func (w *Watcher) Build() (*routing.Table, error) {
	ctrls, err := Controllers(w.mounts...)
	if err != nil {
		return nil, err
	}
	return routing.Build(append(w.base[:len(w.base):len(w.base)], ctrls...)...)
}

// Rebuild builds a fresh table and hands it to the dispatcher. It reports
// whether the dispatcher swapped tables.
func (w *Watcher) Rebuild() (bool, error) {
	t, err := w.Build()
	if err != nil {
		return false, err
	}
	return w.dispatcher.Reload(t), nil
}

// Start watches every directory below the mounts until ctx is done.
// Directories created later are added as they appear.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating static watcher: %w", err)
	}
	w.watcher = fw

	for _, m := range w.mounts {
		if err := w.addTree(m.Dir); err != nil {
			fw.Close()
			return err
		}
	}

	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		debug.Trace("static", "watching directory", "dir", p)
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	rebuild := func() {
		changed, err := w.Rebuild()
		if err != nil {
			w.logger.Error("static route rebuild failed", "error", err)
			return
		}
		debug.Log("static", "route table rebuilt", "changed", changed)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debug.Trace("static", "file event", "name", ev.Name, "op", ev.Op.String())
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(ev.Name); err != nil {
					debug.Log("static", "not watching new entry", "name", ev.Name, "error", err)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(rebuildDebounce, rebuild)
			} else {
				timer.Reset(rebuildDebounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("static watcher error", "error", err)
		}
	}
}
