package chunker

import (
	"github.com/minimee-ai/recall/pkg/models"
)

// FixedWindow accumulates messages into fixed-size blocks. It is the bulk
// ingestion strategy: cheap, predictable, and insensitive to timing.
type FixedWindow struct {
	config Config
}

var _ Chunker = (*FixedWindow)(nil)

// NewFixedWindow creates a fixed-size windowing chunker.
func NewFixedWindow(cfg Config) *FixedWindow {
	return &FixedWindow{config: cfg.withDefaults()}
}

// Name returns the strategy name.
func (f *FixedWindow) Name() string {
	return "fixed_window"
}

// Chunk flushes a block every MaxChunkSize messages. A trailing buffer of
// at least MinChunkSize messages becomes its own block; a smaller tail is
// merged into the previous block, whose aggregates are recomputed. When no
// previous block exists the tail is kept as a block regardless of size, so
// that every message is covered.
func (f *FixedWindow) Chunk(msgs []models.Message) []models.Block {
	if len(msgs) == 0 {
		return nil
	}

	var blocks []models.Block
	var buffer []int

	for i := range msgs {
		buffer = append(buffer, i)
		if len(buffer) >= f.config.MaxChunkSize {
			blocks = append(blocks, finalizeBlock(msgs, buffer))
			buffer = nil
		}
	}

	if len(buffer) == 0 {
		return blocks
	}

	if len(buffer) >= f.config.MinChunkSize || len(blocks) == 0 {
		blocks = append(blocks, finalizeBlock(msgs, buffer))
		return blocks
	}

	// Merge the short tail into the previous block.
	last := &blocks[len(blocks)-1]
	merged := append(append([]int{}, last.Indices...), buffer...)
	*last = finalizeBlock(msgs, merged)
	return blocks
}
