package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Change summarises how a reloaded configuration differs from the one the
// engine was started with. Registration is fixed at startup, so every
// change only takes effect after a restart.
type Change struct {
	// Added and Removed list notify aliases, plus custom integrations as
	// "custom:<alias>".
	Added   []string
	Removed []string
	// Modified lists aliases whose declaration changed.
	Modified []string
	// Sections lists other top-level sections that changed.
	Sections []string
}

// Empty reports whether the two configurations are equivalent.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0 && len(c.Sections) == 0
}

// Diff compares two configurations.
func Diff(prev, next *Config) Change {
	before := declSet(prev)
	after := declSet(next)
	var ch Change
	for a, v := range after {
		old, ok := before[a]
		switch {
		case !ok:
			ch.Added = append(ch.Added, a)
		case !reflect.DeepEqual(old, v):
			ch.Modified = append(ch.Modified, a)
		}
	}
	for a := range before {
		if _, ok := after[a]; !ok {
			ch.Removed = append(ch.Removed, a)
		}
	}
	sort.Strings(ch.Added)
	sort.Strings(ch.Removed)
	sort.Strings(ch.Modified)

	if prev != nil && next != nil {
		if prev.Server != next.Server {
			ch.Sections = append(ch.Sections, "server")
		}
		if prev.Log != next.Log {
			ch.Sections = append(ch.Sections, "log")
		}
		if prev.History != next.History {
			ch.Sections = append(ch.Sections, "history")
		}
	}
	return ch
}

func declSet(c *Config) map[string]any {
	set := make(map[string]any)
	if c == nil {
		return set
	}
	for a, v := range c.Notify {
		set[a] = v
	}
	for a, v := range c.CustomIntegrations {
		set["custom:"+a] = v
	}
	return set
}

// Watcher reloads a config file when it changes and reports how it differs
// from the last configuration it saw.
type Watcher struct {
	path string

	mu      sync.Mutex
	current *Config
}

// NewWatcher returns a Watcher for path, comparing reloads against current.
func NewWatcher(path string, current *Config) *Watcher {
	return &Watcher{path: filepath.Clean(path), current: current}
}

// reload loads the file and diffs it against the last good configuration.
// It reports false when the file is invalid or nothing changed.
func (w *Watcher) reload() (*Config, Change, bool) {
	next, err := Load(w.path)
	if err != nil {
		slog.Error("config: reload failed", "path", w.path, "err", err)
		return nil, Change{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	ch := Diff(w.current, next)
	if ch.Empty() {
		return nil, ch, false
	}
	w.current = next
	return next, ch, true
}

// Run watches the file's directory until ctx is cancelled, calling onChange
// for each reload that differs from the previous one. Watching the directory
// keeps the watch alive across editors that save by rename.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config, Change)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if next, ch, ok := w.reload(); ok {
				onChange(next, ch)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// Watch is shorthand for NewWatcher(path, current).Run(ctx, onChange).
func Watch(ctx context.Context, path string, current *Config, onChange func(*Config, Change)) error {
	return NewWatcher(path, current).Run(ctx, onChange)
}
