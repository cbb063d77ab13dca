package config

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedDeclaration is returned when a notify entry cannot be read as an
// argument mapping.
var ErrMalformedDeclaration = errors.New("malformed notify declaration")

// Declaration is one resolved notify entry.
type Declaration struct {
	Alias string
	Type  string
	// Args is nil when the integration is built without arguments.
	Args map[string]any
}

// Resolve turns the raw value declared under alias into a Declaration:
//
//	term:                          → type term,  no args
//	ops: {slack: {url: ...}}       → type slack, args {url: ...}
//	out: {terminal: null}          → type terminal, no args
//	slack: {url: ..., channel: ..} → type slack, args as given
func Resolve(alias string, value any) (Declaration, error) {
	d := Declaration{Alias: alias, Type: alias}
	if isEmpty(value) {
		return d, nil
	}
	m, ok := asMap(value)
	if !ok {
		return d, fmt.Errorf("notify.%s: %w: want a mapping, got %T", alias, ErrMalformedDeclaration, value)
	}
	if len(m) == 1 {
		for key, inner := range m {
			if isEmpty(inner) {
				d.Type = key
				return d, nil
			}
			if args, ok := asMap(inner); ok {
				d.Type = key
				d.Args = args
				return d, nil
			}
		}
	}
	d.Args = m
	return d, nil
}

// Declarations resolves every notify entry, sorted by alias.
func (c *Config) Declarations() ([]Declaration, error) {
	aliases := make([]string, 0, len(c.Notify))
	for alias := range c.Notify {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	out := make([]Declaration, 0, len(aliases))
	for _, alias := range aliases {
		d, err := Resolve(alias, c.Notify[alias])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	m, ok := asMap(v)
	return ok && len(m) == 0
}

// asMap normalises the mapping types produced by the YAML and TOML decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
