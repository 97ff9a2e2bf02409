package models

import (
	"time"
)

// Block is a contiguous group of consecutive messages treated as one
// retrieval unit. Blocks are transient: chunking produces them, and they
// are persisted only as the text and metadata of an EmbeddingRecord with
// Chunk set.
type Block struct {
	// Indices are positions into the source message sequence. They are
	// contiguous, gap-free and order-preserving; across all blocks of one
	// chunking pass they partition the sequence exactly.
	Indices []int `json:"indices"`

	// Text is the concatenated block content, one "[sender]: content" line
	// per message.
	Text string `json:"text"`

	// Participants is the deduplicated set of senders, in order of first
	// appearance.
	Participants []string `json:"participants"`

	StartTimestamp  time.Time `json:"start_timestamp"`
	EndTimestamp    time.Time `json:"end_timestamp"`
	DurationMinutes float64   `json:"duration_minutes"`
	MessageCount    int       `json:"message_count"`
}
