// Package discovery finds compiled test plugins and reads the tests they
// export.
//
// A test plugin is a Go plugin (go build -buildmode=plugin) exporting a
// symbol named Tests, either a variable of type []*check.Test or a function
// returning one.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/streamwatch/streamwatch/pkg/check"
)

const (
	// Extension is the file suffix of test plugins.
	Extension = ".so"
	// Symbol is the name of the exported test list.
	Symbol = "Tests"
)

var (
	ErrNoPlugins = errors.New("no test plugins found")
	ErrBadSymbol = errors.New("unexpected type for exported Tests")
)

// Lookuper is the subset of *plugin.Plugin used by the loader.
type Lookuper interface {
	Lookup(symName string) (plugin.Symbol, error)
}

// Opener opens the plugin at path.
type Opener func(path string) (Lookuper, error)

func openPlugin(path string) (Lookuper, error) {
	return plugin.Open(path)
}

// Loader loads tests from plugin files.
type Loader struct {
	open Opener
}

// New returns a Loader. A nil open uses plugin.Open.
func New(open Opener) *Loader {
	if open == nil {
		open = openPlugin
	}
	return &Loader{open: open}
}

// Load returns the tests exported by path, which is a plugin file or a
// directory searched recursively. Files are processed in lexical order and
// tests keep their declared order within a file.
func (l *Loader) Load(path string) ([]*check.Test, error) {
	files, err := findPlugins(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPlugins, path)
	}

	var tests []*check.Test
	for _, f := range files {
		ts, err := l.loadFile(f)
		if err != nil {
			return nil, err
		}
		slog.Debug("discovery: plugin loaded", "path", f, "tests", len(ts))
		tests = append(tests, ts...)
	}
	return tests, nil
}

func (l *Loader) loadFile(path string) ([]*check.Test, error) {
	p, err := l.open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		slog.Warn("discovery: plugin exports no tests", "path", path)
		return nil, nil
	}

	switch v := sym.(type) {
	case *[]*check.Test:
		return *v, nil
	case func() []*check.Test:
		return v(), nil
	case *func() []*check.Test:
		return (*v)(), nil
	default:
		return nil, fmt.Errorf("%s: %w: %T", path, ErrBadSymbol, sym)
	}
}

// findPlugins returns every plugin file under root, or root itself when it
// is a file. Names starting with "." or "_" are skipped.
func findPlugins(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(name, Extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
