// Package chunker segments ordered message sequences into conversational
// blocks for embedding and retrieval. Two interchangeable strategies are
// provided: fixed-size windowing for bulk ingestion and time/topic-aware
// segmentation for real-time ingestion.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/minimee-ai/recall/pkg/models"
)

// Chunker defines the interface for block formation strategies.
// Implementations are pure: they allocate blocks over an in-memory
// sequence and are safe to run in parallel across independent
// conversations.
type Chunker interface {
	// Chunk segments a timestamp-ordered message sequence into blocks.
	// The returned blocks' index sets partition the input: contiguous,
	// order-preserving, non-overlapping, covering every message exactly
	// once.
	Chunk(msgs []models.Message) []models.Block

	// Name returns the strategy name for logging and debugging.
	Name() string
}

// Config contains common configuration for chunking strategies.
type Config struct {
	// MaxChunkSize is the flush size for fixed windowing.
	// Default: 5
	MaxChunkSize int `yaml:"max_chunk_size"`

	// MinChunkSize is the minimum size a trailing buffer must reach to
	// become its own block under fixed windowing; smaller tails are merged
	// into the previous block.
	// Default: 3
	MinChunkSize int `yaml:"min_chunk_size"`

	// SilenceThreshold is the maximum gap between consecutive messages
	// before a new block is forced.
	// Default: 1h
	SilenceThreshold time.Duration `yaml:"silence_threshold"`

	// TimeWindow is the maximum span a single block may cover.
	// Default: 20m
	TimeWindow time.Duration `yaml:"time_window"`

	// TopicShiftGap is the minimum gap required for the question-asymmetry
	// topic heuristic to fire.
	// Default: 30m
	TopicShiftGap time.Duration `yaml:"topic_shift_gap"`
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:     5,
		MinChunkSize:     3,
		SilenceThreshold: time.Hour,
		TimeWindow:       20 * time.Minute,
		TopicShiftGap:    30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.MinChunkSize <= 0 {
		c.MinChunkSize = d.MinChunkSize
	}
	if c.MinChunkSize > c.MaxChunkSize {
		c.MinChunkSize = c.MaxChunkSize
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = d.SilenceThreshold
	}
	if c.TimeWindow <= 0 {
		c.TimeWindow = d.TimeWindow
	}
	if c.TopicShiftGap <= 0 {
		c.TopicShiftGap = d.TopicShiftGap
	}
	return c
}

// finalizeBlock computes a block's aggregate fields from its message
// indices. Called on every flush, and again when a trailing remainder is
// merged into an existing block.
func finalizeBlock(msgs []models.Message, indices []int) models.Block {
	var sb strings.Builder
	participants := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)

	start := msgs[indices[0]].Timestamp
	end := start

	for i, idx := range indices {
		m := msgs[idx]
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s]: %s", m.Sender, m.Content)

		if _, ok := seen[m.Sender]; !ok {
			seen[m.Sender] = struct{}{}
			participants = append(participants, m.Sender)
		}
		if m.Timestamp.Before(start) {
			start = m.Timestamp
		}
		if m.Timestamp.After(end) {
			end = m.Timestamp
		}
	}

	return models.Block{
		Indices:         indices,
		Text:            sb.String(),
		Participants:    participants,
		StartTimestamp:  start,
		EndTimestamp:    end,
		DurationMinutes: end.Sub(start).Minutes(),
		MessageCount:    len(indices),
	}
}
