package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// WatchFile watches the config file and calls onChange once the writes have
// settled. The watch is on the containing directory because editors and the
// web handler replace the file instead of writing it in place. The returned
// stop function blocks until the watch goroutine is gone.
func WatchFile(cfile string, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("can't create config file watcher: %w", err)
	}
	dir := filepath.Dir(cfile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("can't watch %s: %w", dir, err)
	}

	name := filepath.Base(cfile)
	stopchan := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-stopchan:
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				slog.Debug("Config file change detected", "op", event.Op.String())
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			case <-timerC:
				timerC = nil
				slog.Info("Config file changed on disk")
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config file watcher error", "error", err)
			}
		}
	}()

	stop := func() {
		close(stopchan)
		watcher.Close()
		wg.Wait()
	}
	return stop, nil
}
