package integration

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/pkg/types"
)

var (
	ErrUnknownType     = errors.New("unknown integration type")
	ErrDuplicateType   = errors.New("integration type already registered")
	ErrMalformedCustom = errors.New("malformed custom integration")
	ErrTypeNotExported = errors.New("integration type not exported by module")
	ErrModuleNotFound  = errors.New("integration module not found")
)

// Registry maps integration type names to their factories. It is populated
// during startup and read-only afterwards.
type Registry struct {
	factories map[string]types.Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]types.Factory)}
}

// Default returns a registry holding every built-in integration type.
func Default() *Registry {
	r := NewRegistry()
	for name, f := range builtins() {
		r.factories[name] = f
	}
	return r
}

func builtins() map[string]types.Factory {
	return map[string]types.Factory{
		"terminal":  newTerminal,
		"slack":     newSlack,
		"trello":    newTrello,
		"webhook":   newWebhook,
		"websocket": newWebSocket,
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f types.Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (types.Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return f, nil
}

// Types returns every registered type name in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates one integration per declaration. The first unknown type
// or failing factory aborts the build.
func (r *Registry) Build(decls []config.Declaration) (Instances, error) {
	out := make(Instances, len(decls))
	for _, d := range decls {
		f, err := r.Lookup(d.Type)
		if err != nil {
			return nil, fmt.Errorf("notify.%s: %w", d.Alias, err)
		}
		inst, err := f(d.Args)
		if err != nil {
			return nil, fmt.Errorf("notify.%s: build %s integration: %w", d.Alias, d.Type, err)
		}
		if inst == nil {
			return nil, fmt.Errorf("notify.%s: %s factory returned no integration", d.Alias, d.Type)
		}
		out[d.Alias] = inst
		slog.Debug("integration: built", "alias", d.Alias, "type", d.Type)
	}
	return out, nil
}

// Instances maps a declared alias to its integration.
type Instances map[string]types.Integration

// Aliases returns the declared aliases in sorted order.
func (in Instances) Aliases() []string {
	out := make([]string, 0, len(in))
	for a := range in {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Info describes a declared integration for status reporting.
type Info struct {
	Alias    string `json:"alias"`
	Type     string `json:"type"`
	Bound    bool   `json:"bound"`
	Pending  int    `json:"pending"`
	Clients  int    `json:"clients,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}
