// Package config loads tool configuration from .depmig/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const schemaVersion = 1

// MarkerConfig names the spellings that mark declarations deprecated.
type MarkerConfig struct {
	// Decorators are matched on their last dotted segment.
	Decorators []string `json:"decorators" mapstructure:"decorators"`

	// Attributes are the attribute-producing callables.
	Attributes []string `json:"attributes" mapstructure:"attributes"`
}

// OracleConfig selects and configures the type oracle backend.
type OracleConfig struct {
	// Backend is "lsp", "scip" or "off".
	Backend string `json:"backend" mapstructure:"backend"`

	// Command and Args spawn the language server for the lsp backend.
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`

	// IndexPath locates the SCIP index for the scip backend.
	IndexPath string `json:"indexPath,omitempty" mapstructure:"indexPath"`

	// TimeoutMs bounds one oracle query.
	TimeoutMs int `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// ResolverConfig tunes dependency traversal.
type ResolverConfig struct {
	// Depth bounds the import BFS.
	Depth int `json:"depth" mapstructure:"depth"`

	// Roots are package roots relative to the project root; empty
	// means discover them.
	Roots []string `json:"roots,omitempty" mapstructure:"roots"`
}

// CacheConfig controls the catalog cache.
type CacheConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// MaxAgeDays is the prune horizon for cache maintenance.
	MaxAgeDays int `json:"maxAgeDays" mapstructure:"maxAgeDays"`
}

// LoggingConfig mirrors the logger's settings.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// Config is the root configuration.
type Config struct {
	Version  int            `json:"version" mapstructure:"version"`
	Markers  MarkerConfig   `json:"markers" mapstructure:"markers"`
	Oracle   OracleConfig   `json:"oracle" mapstructure:"oracle"`
	Resolver ResolverConfig `json:"resolver" mapstructure:"resolver"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: schemaVersion,
		Markers: MarkerConfig{
			Decorators: []string{"deprecated"},
			Attributes: []string{"deprecated_attribute"},
		},
		Oracle: OracleConfig{
			Backend:   "lsp",
			Command:   "pyright-langserver",
			Args:      []string{"--stdio"},
			TimeoutMs: 15000,
		},
		Resolver: ResolverConfig{
			Depth: 2,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxAgeDays: 30,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.depmig/config.json,
// falling back to defaults when the file is absent.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", schemaVersion)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".depmig"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to <root>/.depmig/config.json.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".depmig")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks the configuration for values the tool cannot run with.
func (c *Config) Validate() error {
	if c.Version != schemaVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	switch c.Oracle.Backend {
	case "lsp", "scip", "off":
	default:
		return &ConfigError{Field: "oracle.backend", Message: "must be lsp, scip or off"}
	}
	if c.Oracle.Backend == "lsp" && c.Oracle.Command == "" {
		return &ConfigError{Field: "oracle.command", Message: "lsp backend needs a server command"}
	}
	if c.Oracle.Backend == "scip" && c.Oracle.IndexPath == "" {
		return &ConfigError{Field: "oracle.indexPath", Message: "scip backend needs an index path"}
	}
	if c.Resolver.Depth < 0 {
		return &ConfigError{Field: "resolver.depth", Message: "must be non-negative"}
	}
	if len(c.Markers.Decorators) == 0 && len(c.Markers.Attributes) == 0 {
		return &ConfigError{Field: "markers", Message: "at least one marker spelling required"}
	}
	return nil
}

// ConfigError reports an invalid field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
