package estate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diligence-ai/estate/registry"
)

// Config holds engagement-level settings loaded from a YAML file.
//
// All sections are optional: an empty config opens an engagement that
// persists to the current directory with no queue or registry.
type Config struct {
	// BasePath is the directory where snapshot files are written.
	BasePath string `yaml:"base_path"`

	// Actor names the operator for session and change attribution.
	Actor string `yaml:"actor"`

	// SchemaFile points to a YAML document of identity schema overrides.
	SchemaFile string `yaml:"schema_file"`

	// Redis configures the review-queue connection. Empty URL disables
	// the queue.
	Redis RedisConfig `yaml:"redis"`

	// Registry configures the etcd session registry. Empty endpoints
	// disable it.
	Registry registry.Config `yaml:"registry"`
}

// RedisConfig holds review-queue connection settings.
type RedisConfig struct {
	// URL is the Redis connection string, e.g. "redis://localhost:6379".
	URL string `yaml:"url"`

	// ConnectTimeout bounds connection establishment. Default 5s.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout bounds read operations. Default 30s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds write operations. Default 5s.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoadConfig reads and validates an engagement config from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newConfigurationError("LoadConfig", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, newConfigurationError("LoadConfig",
			fmt.Errorf("parse %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency. It does not touch the network.
func (c Config) Validate() error {
	if c.Registry.TLS != nil && c.Registry.TLS.Enabled && len(c.Registry.Endpoints) == 0 {
		return newConfigurationError("Config.Validate",
			fmt.Errorf("%w: registry TLS enabled but no endpoints", ErrInvalidConfig))
	}
	if c.SchemaFile != "" {
		if _, err := os.Stat(c.SchemaFile); err != nil {
			return newConfigurationError("Config.Validate",
				fmt.Errorf("%w: schema file: %v", ErrInvalidConfig, err))
		}
	}
	return nil
}

// Options converts the config into Engagement options. Network-backed
// collaborators (queue, registry) are constructed lazily by the caller;
// this covers the local settings only.
func (c Config) Options() ([]Option, error) {
	var opts []Option
	if c.BasePath != "" {
		opts = append(opts, WithBasePath(c.BasePath))
	}
	if c.Actor != "" {
		opts = append(opts, WithActor(c.Actor))
	}
	if c.SchemaFile != "" {
		doc, err := os.ReadFile(c.SchemaFile)
		if err != nil {
			return nil, newConfigurationError("Config.Options", err)
		}
		opts = append(opts, WithSchemaOverrides(doc))
	}
	return opts, nil
}
