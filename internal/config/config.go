package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up next to the tests.
const DefaultFileName = ".streamwatch.yml"

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort   = 8080
	DefaultHistoryTTL = time.Hour
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

var (
	ErrNotFound      = errors.New("config file not found")
	ErrEmpty         = errors.New("config file is empty")
	ErrMissingNotify = errors.New("config has no notify section")
)

// Config is the parsed configuration file.
type Config struct {
	// Notify maps an integration alias to its raw declaration. See Resolve.
	Notify map[string]any `yaml:"notify" toml:"notify"`

	// CustomIntegrations maps an alias to a plugin-provided integration type.
	CustomIntegrations map[string]CustomIntegration `yaml:"custom_integrations" toml:"custom_integrations"`

	Server  ServerConfig  `yaml:"server" toml:"server"`
	Log     LogConfig     `yaml:"log" toml:"log"`
	History HistoryConfig `yaml:"history" toml:"history"`
}

// CustomIntegration declares an integration type exported by a Go plugin.
type CustomIntegration struct {
	// Name is the exported factory symbol inside the plugin.
	Name string `yaml:"name" toml:"name"`
	// Path locates the plugin (.so) file.
	Path string `yaml:"path" toml:"path"`
}

// ServerConfig holds the status surfaces' settings. A zero port disables
// the corresponding listener.
type ServerConfig struct {
	HTTPPort int        `yaml:"http_port" toml:"http_port"`
	GRPCPort int        `yaml:"grpc_port" toml:"grpc_port"`
	Auth     AuthConfig `yaml:"auth" toml:"auth"`
}

// AuthConfig controls API key authentication on the status surfaces.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" toml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env" toml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) carrying the key.
	// Defaults to "x-api-key".
	Header string `yaml:"header" toml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// HistoryConfig controls how long notification history is retained.
type HistoryConfig struct {
	TTL time.Duration `yaml:"ttl" toml:"ttl"`
}

// UnmarshalTOML lets TOML files spell the TTL as a duration string.
func (h *HistoryConfig) UnmarshalTOML(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("history must be a table")
	}
	raw, ok := m["ttl"]
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("history.ttl must be a duration string")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("history.ttl: %w", err)
	}
	h.TTL = d
	return nil
}

// Locate returns the configuration file for testPath. When testPath is a
// file the file is looked up in its directory.
func Locate(testPath, name string) (string, error) {
	if name == "" {
		name = DefaultFileName
	}
	info, err := os.Stat(testPath)
	if err != nil {
		return "", fmt.Errorf("config: stat %q: %w", testPath, err)
	}
	dir := testPath
	if !info.IsDir() {
		dir = filepath.Dir(testPath)
	}
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: %w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("config: stat %q: %w", p, err)
	}
	return p, nil
}

// Load reads and parses the config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config: %w: %s", ErrEmpty, path)
	}

	cfg := defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("config: parse toml: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		History: HistoryConfig{
			TTL: DefaultHistoryTTL,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Notify == nil {
		return ErrMissingNotify
	}
	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [0, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	if cfg.History.TTL < 0 {
		return fmt.Errorf("history.ttl must not be negative")
	}
	return nil
}
