package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/minimee-ai/recall/internal/assembler"
	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/pkg/models"
)

// RetrieveOptions narrows a retrieval to an owner and optional filters.
type RetrieveOptions struct {
	// OwnerID scopes results to one account. Required.
	OwnerID string

	// ConversationID optionally restricts to a single conversation.
	ConversationID string

	// Sources is three-valued: nil means all sources, an empty non-nil
	// slice matches nothing, a non-empty slice filters.
	Sources []models.Source

	Sender    string
	Recipient string
	Language  string

	// Limit caps the number of results; 0 uses the engine default.
	Limit int

	// MaxTokens overrides the assembler's token budget when positive.
	MaxTokens int
}

// RetrieveDetails reports what happened during a retrieval alongside the
// assembled context string.
type RetrieveDetails struct {
	ResultsCount  int     `json:"results_count"`
	TopSimilarity float64 `json:"top_similarity"`
	AvgSimilarity float64 `json:"avg_similarity"`

	// Reranked is true when the LLM reranker ordered the results.
	Reranked bool `json:"reranked"`

	// Fallback is true when reranking was attempted but failed, leaving
	// the heuristic ordering in place.
	Fallback bool `json:"fallback"`

	Results []models.RetrievalResult `json:"results"`
}

// RetrieveContext runs the full retrieval pipeline for a query and returns
// the assembled context string with retrieval details.
//
// Degradation never reaches the caller: embedding or store failures are
// logged and yield the no-context sentinel. The error return is reserved
// for programmer errors.
func (e *Engine) RetrieveContext(ctx context.Context, query string, opts *RetrieveOptions) (string, *RetrieveDetails, error) {
	start := time.Now()
	if opts == nil {
		opts = &RetrieveOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.Limit
	}

	details := &RetrieveDetails{Results: []models.RetrievalResult{}}
	useRerank := e.shouldRerank(limit)

	poolLimit := limit
	if useRerank && e.cfg.Rerank.TopK > poolLimit {
		poolLimit = e.cfg.Rerank.TopK
	}

	results, err := e.ranker.Rank(ctx, query, &store.SearchOptions{
		OwnerID:        opts.OwnerID,
		ConversationID: opts.ConversationID,
		Sources:        opts.Sources,
		Sender:         opts.Sender,
		Recipient:      opts.Recipient,
		Language:       opts.Language,
		Limit:          poolLimit,
	})
	if err != nil {
		// Embedding unavailable. Degrade to the sentinel, never raise.
		e.countEmbedding("error")
		e.logger.Warn("retrieval degraded, embedding failed", "error", err)
		e.observeRetrieval(start, details)
		return assembler.NoContextSentinel, details, nil
	}

	if useRerank && len(results) > 0 {
		reranked, rerr := e.reranker.Rerank(ctx, query, results)
		if rerr != nil {
			details.Fallback = true
			if e.metrics != nil {
				e.metrics.RerankFallbacks.Inc()
			}
			e.logger.Warn("reranker failed, keeping heuristic order",
				"reranker", e.reranker.Name(),
				"error", rerr)
		} else {
			results = reranked
			details.Reranked = true
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}

	details.Results = results
	details.ResultsCount = len(results)
	if len(results) > 0 {
		var sum float64
		top := results[0].Similarity
		for i := range results {
			sum += results[i].Similarity
			if results[i].Similarity > top {
				top = results[i].Similarity
			}
		}
		details.TopSimilarity = top
		details.AvgSimilarity = sum / float64(len(results))
	}

	asmCfg := e.cfg.Assembler
	if opts.MaxTokens > 0 {
		asmCfg.MaxTokens = opts.MaxTokens
	}
	contextStr := assembler.Assemble(results, asmCfg)

	e.observeRetrieval(start, details)
	e.logger.Debug("retrieved context",
		"results", details.ResultsCount,
		"top_similarity", details.TopSimilarity,
		"reranked", details.Reranked,
		"fallback", details.Fallback)

	return contextStr, details, nil
}

// shouldRerank reports whether reranking is worth running for a limit:
// enabled, and either the caller asked for a large result set or the
// configured pool exceeds the limit.
func (e *Engine) shouldRerank(limit int) bool {
	if !e.cfg.Rerank.Enabled {
		return false
	}
	return limit > rerankLimitTrigger || e.cfg.Rerank.TopK > limit
}

func (e *Engine) observeRetrieval(start time.Time, details *RetrieveDetails) {
	if e.metrics == nil {
		return
	}
	e.metrics.RetrievalDuration.
		WithLabelValues(strconv.FormatBool(details.Reranked)).
		Observe(time.Since(start).Seconds())
	e.metrics.RetrievalResults.Observe(float64(details.ResultsCount))
}
