// Package ranker turns a natural-language query into an ordered list of
// retrieval results. Candidates come from the vector store and are ranked
// by a combined score of similarity, chunk boost, and recency.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/minimee-ai/recall/internal/embeddings"
	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/pkg/models"
)

const (
	// DefaultChunkBoost is the multiplier applied to block records. Blocks
	// carry conversational context a single message lacks, so they win ties
	// against messages of equal similarity.
	DefaultChunkBoost = 1.2

	// DefaultThreshold is the minimum cosine similarity for a candidate to
	// be considered at all.
	DefaultThreshold = 0.15

	// DefaultNoTimestampWeight is the recency weight assigned to records
	// whose timestamp is absent or unparsable.
	DefaultNoTimestampWeight = 0.5

	// DefaultLimit caps the number of results when the caller gives none.
	DefaultLimit = 10

	// recencyDecaySeconds is the exponential decay constant: a record one
	// month old weighs e^-1 of a record written now.
	recencyDecaySeconds = 30 * 24 * 60 * 60
)

// candidatePoolMin is the smallest candidate set fetched from the store.
// Ranking reorders by more than similarity, so the pool must be wider than
// the final limit or boosted entries below the similarity cutoff are lost.
const candidatePoolMin = 20

// Config contains ranking parameters.
type Config struct {
	ChunkBoost        float64 `yaml:"chunk_boost"`
	Threshold         float64 `yaml:"threshold"`
	NoTimestampWeight float64 `yaml:"no_timestamp_weight"`
}

// DefaultConfig returns the default ranking parameters.
func DefaultConfig() Config {
	return Config{
		ChunkBoost:        DefaultChunkBoost,
		Threshold:         DefaultThreshold,
		NoTimestampWeight: DefaultNoTimestampWeight,
	}
}

func (c Config) withDefaults() Config {
	if c.ChunkBoost == 0 {
		c.ChunkBoost = DefaultChunkBoost
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.NoTimestampWeight == 0 {
		c.NoTimestampWeight = DefaultNoTimestampWeight
	}
	return c
}

// Ranker embeds queries and ranks store candidates.
type Ranker struct {
	store    store.Store
	embedder embeddings.Provider
	cfg      Config
	logger   *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a Ranker over the given store and embedding provider.
func New(s store.Store, e embeddings.Provider, cfg Config, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{
		store:    s,
		embedder: e,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Rank embeds the query, searches the store, and returns results ordered by
// combined score descending, capped at opts.Limit.
//
// A store failure is not an error from the caller's point of view: it is
// logged and an empty slice is returned. An embedding failure is returned
// as-is (wrapped in embeddings.ErrUnavailable by the provider) so the
// caller can decide how to degrade.
func (r *Ranker) Rank(ctx context.Context, query string, opts *store.SearchOptions) ([]models.RetrievalResult, error) {
	if opts == nil {
		opts = &store.SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	searchOpts := *opts
	searchOpts.Limit = limit * 4
	if searchOpts.Limit < candidatePoolMin {
		searchOpts.Limit = candidatePoolMin
	}
	if searchOpts.Threshold == 0 {
		searchOpts.Threshold = r.cfg.Threshold
	}

	candidates, err := r.store.Search(ctx, vector, &searchOpts)
	if err != nil {
		r.logger.Warn("vector store search failed, returning no results",
			"error", err,
			"owner_id", opts.OwnerID)
		return []models.RetrievalResult{}, nil
	}

	results := make([]models.RetrievalResult, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, r.score(cand))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// score converts a store candidate into a RetrievalResult with the
// combined ranking score attached.
func (r *Ranker) score(cand *store.Candidate) models.RetrievalResult {
	res := normalize(cand)

	res.Similarity = cand.Similarity
	res.ChunkBoost = 1.0
	if res.Chunk {
		res.ChunkBoost = r.cfg.ChunkBoost
	}
	res.RecencyWeight = r.recencyWeight(cand)
	res.CombinedScore = res.Similarity * res.ChunkBoost * res.RecencyWeight

	return res
}

// recencyWeight computes exp(-age/decay) from the candidate's timestamp,
// preferring the message timestamp over the metadata one. Candidates with
// no usable timestamp get the configured default weight.
func (r *Ranker) recencyWeight(cand *store.Candidate) float64 {
	var ts time.Time
	switch {
	case cand.Message != nil && !cand.Message.Timestamp.IsZero():
		ts = cand.Message.Timestamp
	default:
		parsed, ok := cand.Record.Metadata.ParsedTimestamp()
		if !ok {
			return r.cfg.NoTimestampWeight
		}
		ts = parsed
	}
	return RecencyWeight(ts, r.now())
}

// RecencyWeight returns the exponential decay weight for a timestamp
// relative to now. Future timestamps weigh 1.
func RecencyWeight(ts, now time.Time) float64 {
	age := now.Sub(ts).Seconds()
	if age <= 0 {
		return 1.0
	}
	return math.Exp(-age / recencyDecaySeconds)
}

// normalize flattens a candidate into the query-time result shape,
// synthesizing block fields from metadata when no message backs the record.
func normalize(cand *store.Candidate) models.RetrievalResult {
	meta := &cand.Record.Metadata
	res := models.RetrievalResult{
		Sender:         meta.Sender,
		Content:        cand.Record.Text,
		ConversationID: meta.ConversationID,
		Source:         meta.Source,
		Recipient:      meta.Recipient,
		Chunk:          meta.Chunk,
		Summary:        meta.Summary,
		Tags:           meta.Tags,
	}
	if ts, ok := meta.ParsedTimestamp(); ok {
		res.Timestamp = ts
	}

	if msg := cand.Message; msg != nil {
		if msg.Sender != "" {
			res.Sender = msg.Sender
		}
		if msg.Content != "" {
			res.Content = msg.Content
		}
		if !msg.Timestamp.IsZero() {
			res.Timestamp = msg.Timestamp
		}
		if msg.ConversationID != "" {
			res.ConversationID = msg.ConversationID
		}
		if msg.Source != "" {
			res.Source = msg.Source
		}
		if msg.Recipient != "" {
			res.Recipient = msg.Recipient
		} else if len(msg.Recipients) > 0 {
			res.Recipient = strings.Join(msg.Recipients, ", ")
		}
	} else if res.Sender == "" && len(meta.Participants) > 0 {
		res.Sender = strings.Join(meta.Participants, ", ")
	}

	return res
}
