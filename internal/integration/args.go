package integration

import (
	"fmt"
	"time"
)

// Declarations decoded from YAML and TOML yield different scalar types, so
// arguments are read through these helpers.

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func requiredString(args map[string]any, key string) (string, error) {
	s, err := stringArg(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return s, nil
}

func intArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("argument %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
	}
}

func durationArg(args map[string]any, key string, def time.Duration) (time.Duration, error) {
	s, err := stringArg(args, key)
	if err != nil || s == "" {
		return def, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", key, err)
	}
	return d, nil
}

// rejectUnknown fails on argument keys outside allowed.
func rejectUnknown(args map[string]any, allowed ...string) error {
	for k := range args {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unexpected argument %q", k)
		}
	}
	return nil
}
