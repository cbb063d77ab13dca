package integration

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"plugin"
	"sort"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/pkg/types"
)

// Module is a loaded unit of code exporting integration factories.
type Module interface {
	Lookup(name string) (types.Factory, error)
}

// Resolver locates the module behind a custom integration path.
type Resolver interface {
	Resolve(path string) (Module, error)
}

// LoadCustom registers every custom integration under its alias. Aliases are
// processed in sorted order and the first error aborts loading.
func (r *Registry) LoadCustom(custom map[string]config.CustomIntegration, res Resolver) error {
	aliases := make([]string, 0, len(custom))
	for alias := range custom {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		c := custom[alias]
		if _, ok := r.factories[alias]; ok {
			return fmt.Errorf("custom_integrations.%s: %w", alias, ErrDuplicateType)
		}
		if c.Name == "" || c.Path == "" {
			return fmt.Errorf("custom_integrations.%s: %w: name and path are required", alias, ErrMalformedCustom)
		}
		mod, err := res.Resolve(c.Path)
		if err != nil {
			return fmt.Errorf("custom_integrations.%s: %w", alias, err)
		}
		f, err := mod.Lookup(c.Name)
		if err != nil {
			return fmt.Errorf("custom_integrations.%s: %w", alias, err)
		}
		r.factories[alias] = f
		slog.Info("integration: custom type loaded", "alias", alias, "name", c.Name, "path", c.Path)
	}
	return nil
}

// PluginResolver opens Go plugins. Relative paths are resolved against Dir.
type PluginResolver struct {
	Dir string
}

func (p PluginResolver) Resolve(path string) (Module, error) {
	if !filepath.IsAbs(path) && p.Dir != "" {
		path = filepath.Join(p.Dir, path)
	}
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, path, err)
	}
	return pluginModule{path: path, plug: plug}, nil
}

type pluginModule struct {
	path string
	plug *plugin.Plugin
}

func (m pluginModule) Lookup(name string) (types.Factory, error) {
	sym, err := m.plug.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrTypeNotExported, name, m.path)
	}
	f, ok := asFactory(sym)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s has type %T, want types.Factory", ErrTypeNotExported, name, m.path, sym)
	}
	return f, nil
}

// asFactory accepts an exported factory function or a types.Factory variable.
func asFactory(sym any) (types.Factory, bool) {
	switch f := sym.(type) {
	case func(map[string]any) (types.Integration, error):
		return f, true
	case types.Factory:
		return f, true
	case *types.Factory:
		if f == nil || *f == nil {
			return nil, false
		}
		return *f, true
	default:
		return nil, false
	}
}

// StaticResolver resolves paths against in-process factory tables. It serves
// binaries that link their integrations in and tests.
type StaticResolver map[string]map[string]types.Factory

func (s StaticResolver) Resolve(path string) (Module, error) {
	table, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
	}
	return staticModule{path: path, table: table}, nil
}

type staticModule struct {
	path  string
	table map[string]types.Factory
}

func (m staticModule) Lookup(name string) (types.Factory, error) {
	f, ok := m.table[name]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrTypeNotExported, name, m.path)
	}
	return f, nil
}
