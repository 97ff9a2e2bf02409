// Package engine wires the retrieval pipeline together: chunking,
// embedding, storage, ranking, optional reranking, and context assembly
// behind one explicitly constructed facade.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/minimee-ai/recall/internal/assembler"
	"github.com/minimee-ai/recall/internal/chunker"
	"github.com/minimee-ai/recall/internal/embeddings"
	"github.com/minimee-ai/recall/internal/observability"
	"github.com/minimee-ai/recall/internal/ranker"
	"github.com/minimee-ai/recall/internal/rerank"
	"github.com/minimee-ai/recall/internal/store"
)

// DefaultLimit is the number of results returned when the caller gives no
// limit.
const DefaultLimit = 10

// rerankLimitTrigger: reranking only pays off when the candidate pool is
// meaningfully larger than a handful of results.
const rerankLimitTrigger = 10

// Config contains engine configuration.
type Config struct {
	Chunking  chunker.Config   `yaml:"chunking"`
	Ranking   ranker.Config    `yaml:"ranking"`
	Rerank    rerank.Config    `yaml:"rerank"`
	Assembler assembler.Config `yaml:"assembler"`

	// Limit is the default number of retrieval results.
	Limit int `yaml:"limit"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Chunking:  chunker.DefaultConfig(),
		Ranking:   ranker.DefaultConfig(),
		Rerank:    rerank.Config{TopK: rerank.DefaultTopK},
		Assembler: assembler.DefaultConfig(),
		Limit:     DefaultLimit,
	}
}

// Deps holds the engine's injected dependencies. Store and Embedder are
// required; the rest default to no-op or ambient implementations.
type Deps struct {
	Store    store.Store
	Embedder embeddings.Provider
	Reranker rerank.Reranker
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Engine is the retrieval facade. It holds no mutable state beyond its
// read-only dependencies and is safe for concurrent callers.
type Engine struct {
	store    store.Store
	embedder embeddings.Provider
	reranker rerank.Reranker
	ranker   *ranker.Ranker
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      Config

	fixed *chunker.FixedWindow
	topic *chunker.TopicAware
}

// New creates an Engine and verifies that the embedding provider and the
// store agree on the vector dimension.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("engine requires an embedding provider")
	}
	if got, want := deps.Embedder.Dimension(), deps.Store.Dimension(); got != want {
		return nil, fmt.Errorf("embedder dimension %d does not match store dimension %d", got, want)
	}

	if deps.Reranker == nil {
		deps.Reranker = rerank.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Rerank.TopK <= 0 {
		cfg.Rerank.TopK = rerank.DefaultTopK
	}

	return &Engine{
		store:    deps.Store,
		embedder: deps.Embedder,
		reranker: deps.Reranker,
		ranker:   ranker.New(deps.Store, deps.Embedder, cfg.Ranking, deps.Logger),
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		cfg:      cfg,
		fixed:    chunker.NewFixedWindow(cfg.Chunking),
		topic:    chunker.NewTopicAware(cfg.Chunking),
	}, nil
}

// chunkerFor maps a strategy name to its chunker. The empty string selects
// fixed windowing.
func (e *Engine) chunkerFor(strategy string) (chunker.Chunker, error) {
	switch strategy {
	case "", "fixed":
		return e.fixed, nil
	case "topic":
		return e.topic, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}
