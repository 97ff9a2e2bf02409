// Package config loads the engine configuration from yaml. Values of the
// form ${VAR} are expanded from the environment before parsing, so API
// keys and DSNs stay out of config files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minimee-ai/recall/internal/embeddings"
	"github.com/minimee-ai/recall/internal/engine"
	"github.com/minimee-ai/recall/internal/observability"
)

// Config is the main configuration structure for recall.
type Config struct {
	Store      StoreConfig             `yaml:"store"`
	Embeddings embeddings.Config       `yaml:"embeddings"`
	Engine     engine.Config           `yaml:"engine"`
	Logging    observability.LogConfig `yaml:"logging"`
	Metrics    MetricsConfig           `yaml:"metrics"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "sqlite" or "pgvector".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string for pgvector.
	DSN string `yaml:"dsn"`

	// Dimension is the store-wide embedding dimension. Must match the
	// configured embedding model.
	Dimension int `yaml:"dimension"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the configuration file. The yaml document is
// unmarshalled over a fully defaulted Config, so only the keys actually
// present override a default; siblings of an overridden key keep theirs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   "sqlite",
			Path:      "recall.db",
			Dimension: 1536,
		},
		Embeddings: embeddings.Config{
			Provider: "openai",
		},
		Engine: engine.DefaultConfig(),
		Logging: observability.LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}
