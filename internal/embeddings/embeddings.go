// Package embeddings provides interfaces and implementations for embedding
// providers. A provider turns text into a fixed-length float vector; the
// model itself is treated as an external black box.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates the embedding model is not ready or the
// provider could not be reached. Ingestion-time callers decide whether to
// skip, retry, or abort; query-time callers degrade to empty results.
var ErrUnavailable = errors.New("embedding model unavailable")

// Unavailable wraps a provider failure so that callers can match it with
// errors.Is(err, ErrUnavailable).
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Provider defines the interface for embedding providers.
// Implementations must be safe for concurrent use: a provider is
// constructed once and shared read-only across callers.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (more efficient).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// Dimension returns the embedding dimension. All vectors written to a
	// store must share this dimension.
	Dimension() int

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}

// Config contains common configuration for embedding providers.
type Config struct {
	Provider string `yaml:"provider"` // openai, ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// Ollama-specific
	OllamaURL string `yaml:"ollama_url"`
}
