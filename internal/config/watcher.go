package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

func modTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Watch monitors the config file and calls onChange with the freshly loaded
// config after each write. Falls back to 60s polling when fsnotify cannot
// watch the file.
func Watch(ctx context.Context, path string, onChange func(*Config)) {
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Printf("[WARN] Config watcher: reload failed: %v", err)
			return
		}
		onChange(cfg)
	}

	watcher, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		log.Printf("[WARN] Config watcher: fsnotify failed (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Printf("[WARN] Config watcher: cannot watch %s (%v), falling back to polling", path, err)
		watcher.Close()
		usePolling = true
	}

	if usePolling {
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			var lastMod time.Time
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if mod, ok := modTime(path); ok && mod.After(lastMod) {
						lastMod = mod
						reload()
					}
				}
			}
		}()
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					log.Printf("[DEBUG] Config watcher: %s changed, reloading", path)
					// Editors often write in bursts; give the file a beat
					// to settle.
					time.Sleep(100 * time.Millisecond)
					reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] Config watcher: %v", err)
			}
		}
	}()
}
