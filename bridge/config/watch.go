/*
NAME
  watch.go

DESCRIPTION
  watch.go implements hot-reload of a Config's on-disk source file: a
  simple "key=value" per line format applied through Update on every
  write, so an operator can retune the bridge without a restart
  (SPEC_FULL.md Part D, item 2).

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ParseFile reads path's "key=value" lines into a map suitable for
// Update. Blank lines and lines starting with '#' are ignored.
func ParseFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: open")
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		vars[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "config: scan")
	}
	return vars, nil
}

// Watcher watches a Config's ConfigPath and applies it to Config on
// every write event, until Close is called.
type Watcher struct {
	fsw    *fsnotify.Watcher
	cfg    *Config
	done   chan struct{}
	closed chan struct{}
}

// WatchFile starts watching cfg.ConfigPath, applying it immediately
// once and then on every subsequent write. Returns nil, nil if
// cfg.ConfigPath is empty (hot-reload disabled).
func WatchFile(cfg *Config) (*Watcher, error) {
	if cfg.ConfigPath == "" {
		return nil, nil
	}

	if vars, err := ParseFile(cfg.ConfigPath); err != nil {
		cfg.Logger.Warning("config: initial load failed", "path", cfg.ConfigPath, "error", err)
	} else {
		cfg.Update(vars)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config: new watcher")
	}
	if err := fsw.Add(cfg.ConfigPath); err != nil {
		fsw.Close()
		return nil, errors.Wrap(err, "config: watch")
	}

	w := &Watcher{
		fsw:    fsw,
		cfg:    cfg,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.closed)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			vars, err := ParseFile(w.cfg.ConfigPath)
			if err != nil {
				w.cfg.Logger.Warning("config: reload failed", "path", w.cfg.ConfigPath, "error", err)
				continue
			}
			w.cfg.Update(vars)
			w.cfg.Logger.Info("config: reloaded", "path", w.cfg.ConfigPath)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Warning("config: watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	<-w.closed
	return err
}
