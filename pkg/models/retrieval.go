package models

import (
	"time"
)

// RetrievalResult is the normalized query-time view of a ranked candidate,
// regardless of whether it is backed by a single message or a synthesized
// block.
type RetrievalResult struct {
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	ConversationID string    `json:"conversation_id"`
	Source         Source    `json:"source,omitempty"`
	Recipient      string    `json:"recipient,omitempty"`

	// Chunk is true when the result represents a conversational block.
	Chunk bool `json:"chunk,omitempty"`

	Similarity    float64 `json:"similarity"`
	ChunkBoost    float64 `json:"chunk_boost"`
	RecencyWeight float64 `json:"recency_weight"`

	// CombinedScore is the primary ranking key:
	// similarity * chunk_boost * recency_weight, or the reranker's score
	// when reranking ran.
	CombinedScore float64 `json:"combined_score"`

	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
