package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rhuss/ember/pkg/debug"
)

// watchDebounce collapses the burst of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes
// the result to onChange. Reload failures go to onError and the previous
// configuration stays in effect. The containing directory is watched so
// that files replaced by an atomic rename are picked up. Watch returns once the
// watcher is set up; it stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	reload := func() {
		cfg, err := Load(target)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		debug.Log("config", "config reloaded", "path", target)
		onChange(cfg)
	}

	go func() {
		defer w.Close()
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
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				debug.Trace("config", "config file event", "op", ev.Op.String())
				if timer == nil {
					timer = time.AfterFunc(watchDebounce, reload)
				} else {
					timer.Reset(watchDebounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("config watcher: %w", err))
				}
			}
		}
	}()
	return nil
}
