// Package config loads and watches the streamwatch configuration file.
//
// Top-level sections:
//   - notify: alias → integration declaration (see Resolve)
//   - custom_integrations: alias → {name, path} of a plugin-provided integration
//   - server: http_port, grpc_port, auth (mode, key_env, header)
//   - log: level (debug|info|warn|error), format (json|text)
//   - history: ttl of the notification history kept for the status API
//
// Load(path) reads YAML, or TOML when the file ends in .toml, applies defaults
// and validates. A missing or empty file and a missing notify section are errors.
//
// Locate(testPath, name) finds the configuration file next to a test file or
// inside a test directory.
//
// A Watcher uses fsnotify to report edits as a Change. Integrations are
// built once at startup, so callers only log what a restart would change.
package config
