// Package rerank rescores retrieval results with an LLM. Reranking is a
// best-effort refinement layer: any failure leaves the heuristic order in
// place, it never blocks or degrades retrieval.
package rerank

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minimee-ai/recall/pkg/models"
)

const (
	// DefaultTopK is the number of leading results submitted for
	// rescoring. Results beyond it keep their heuristic score.
	DefaultTopK = 20

	// DefaultModel is the chat model used for scoring.
	DefaultModel = "gpt-4o-mini"

	defaultScoreMaxTokens = 16
)

var scorePattern = regexp.MustCompile(`[-+]?[0-9]*\.?[0-9]+`)

// Reranker reorders retrieval results by semantic relevance to the query.
type Reranker interface {
	// Rerank returns the results reordered by the reranker's own scoring.
	// On error the caller must keep the original order.
	Rerank(ctx context.Context, query string, results []models.RetrievalResult) ([]models.RetrievalResult, error)

	// Name returns the reranker name.
	Name() string
}

// Config contains reranker configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	TopK    int    `yaml:"top_k"`
}

// Noop passes results through unchanged. It is the default reranker.
type Noop struct{}

// Rerank returns the results as-is.
func (Noop) Rerank(_ context.Context, _ string, results []models.RetrievalResult) ([]models.RetrievalResult, error) {
	return results, nil
}

// Name returns the reranker name.
func (Noop) Name() string { return "noop" }

// chatCompleter is the slice of the OpenAI client the reranker needs.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLM scores each result's relevance to the query with a chat model and
// reorders by the returned scores.
type LLM struct {
	client chatCompleter
	model  string
	topK   int
}

var _ Reranker = (*LLM)(nil)

// NewLLM creates an LLM reranker over an OpenAI-compatible client.
func NewLLM(client *openai.Client, cfg Config) *LLM {
	return newLLM(client, cfg)
}

func newLLM(client chatCompleter, cfg Config) *LLM {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &LLM{
		client: client,
		model:  cfg.Model,
		topK:   cfg.TopK,
	}
}

// Name returns the reranker name.
func (l *LLM) Name() string { return "llm:" + l.model }

// Rerank rescores up to TopK leading results and sorts them by the new
// score; the remainder keeps its heuristic score and trails the rescored
// head. Any scoring failure returns an error with the input untouched.
func (l *LLM) Rerank(ctx context.Context, query string, results []models.RetrievalResult) ([]models.RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	head := len(results)
	if head > l.topK {
		head = l.topK
	}

	rescored := make([]models.RetrievalResult, len(results))
	copy(rescored, results)

	for i := 0; i < head; i++ {
		score, err := l.scoreOne(ctx, query, &rescored[i])
		if err != nil {
			return nil, fmt.Errorf("failed to rescore result %d: %w", i, err)
		}
		rescored[i].CombinedScore = score
	}

	sort.SliceStable(rescored[:head], func(i, j int) bool {
		return rescored[i].CombinedScore > rescored[j].CombinedScore
	})

	return rescored, nil
}

func (l *LLM) scoreOne(ctx context.Context, query string, res *models.RetrievalResult) (float64, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     l.model,
		MaxTokens: defaultScoreMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a strict evaluator. Return only a single number between 0 and 1. " +
					"0 means the passage is unrelated to the question. 1 means it directly answers it.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Question:\n%s\n\nPassage:\n[%s] %s: %s\n\nScore (0-1):",
					query, res.Timestamp.Format("2006-01-02"), res.Sender, res.Content),
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("empty completion response")
	}
	return parseScore(resp.Choices[0].Message.Content)
}

func parseScore(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("empty scoring response")
	}
	match := scorePattern.FindString(trimmed)
	if match == "" {
		return 0, fmt.Errorf("no numeric score in response: %q", trimmed)
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid score %q: %w", match, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("score out of range: %v", val)
	}
	if val > 1 {
		if val <= 100 && strings.Contains(trimmed, "%") {
			val = val / 100
		} else {
			return 0, fmt.Errorf("score out of range: %v", val)
		}
	}
	return val, nil
}
