// Package config loads pipeline configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/carvelab/ingest/internal/blobstore"
	"github.com/carvelab/ingest/internal/types"
)

// Config is the full pipeline configuration.
type Config struct {
	// DatabasePath is the SQLite database file location
	DatabasePath string `yaml:"database_path"`

	// Storage selects the blob backend: "local" or "s3"
	Storage StorageConfig `yaml:"storage"`

	// Anthropic configures AI metadata extraction
	Anthropic AnthropicConfig `yaml:"anthropic"`

	// API configures the status/control HTTP server
	API APIConfig `yaml:"api"`

	// Defaults are the processing options applied to new jobs unless
	// overridden per job
	Defaults types.ProcessingOptions `yaml:"defaults"`
}

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	Backend   string             `yaml:"backend"` // "local" or "s3"
	LocalRoot string             `yaml:"local_root,omitempty"`
	S3        blobstore.S3Config `yaml:"s3,omitempty"`
}

// AnthropicConfig configures vision metadata extraction.
type AnthropicConfig struct {
	APIKey             string  `yaml:"api_key,omitempty"` // prefer ANTHROPIC_API_KEY
	Model              string  `yaml:"model,omitempty"`
	MaxConcurrentCalls int64   `yaml:"max_concurrent_calls,omitempty"`
	RequestsPerSecond  float64 `yaml:"requests_per_second,omitempty"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DatabasePath: ".ingest/ingest.db",
		Storage: StorageConfig{
			Backend:   "local",
			LocalRoot: ".ingest/blobs",
		},
		API: APIConfig{
			Addr: ":8090",
		},
		Defaults: types.DefaultProcessingOptions(),
	}
}

// Load reads the YAML file at path, applies it over the defaults, then
// applies environment overrides. A missing file is not an error: defaults
// plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables. Only
// deployment-specific settings are overridable; processing defaults belong
// in the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("INGEST_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("INGEST_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("INGEST_STORAGE_ROOT"); v != "" {
		c.Storage.LocalRoot = v
	}
	if v := os.Getenv("INGEST_S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := os.Getenv("INGEST_S3_REGION"); v != "" {
		c.Storage.S3.Region = v
	}
	if v := os.Getenv("INGEST_S3_ENDPOINT"); v != "" {
		c.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("INGEST_API_ADDR"); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Anthropic.APIKey = v
	}
}

// Validate checks cross-field consistency
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage.local_root is required for the local backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want local or s3)", c.Storage.Backend)
	}
	return c.Defaults.Validate()
}
