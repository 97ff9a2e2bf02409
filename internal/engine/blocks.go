package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/minimee-ai/recall/internal/temporal"
	"github.com/minimee-ai/recall/pkg/models"
)

// FormBlocks segments a message sequence into conversational blocks using
// the named strategy ("fixed" or "topic"; empty selects fixed). The input
// must be ordered by timestamp; the function is pure.
func (e *Engine) FormBlocks(msgs []models.Message, strategy string) ([]models.Block, error) {
	c, err := e.chunkerFor(strategy)
	if err != nil {
		return nil, err
	}

	blocks := c.Chunk(msgs)
	if e.metrics != nil {
		e.metrics.BlocksFormed.WithLabelValues(c.Name()).Add(float64(len(blocks)))
	}
	return blocks, nil
}

// IndexMessages persists messages, forms blocks per conversation, embeds
// the block texts, and stores one embedding record per block. It returns
// the number of blocks stored.
func (e *Engine) IndexMessages(ctx context.Context, msgs []models.Message, strategy string) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := e.store.InsertMessages(ctx, msgs); err != nil {
		e.countStoreError("insert")
		return 0, fmt.Errorf("failed to store messages: %w", err)
	}
	if e.metrics != nil {
		for i := range msgs {
			e.metrics.MessagesIngested.WithLabelValues(string(msgs[i].Source)).Inc()
		}
	}

	stored := 0
	for _, group := range groupByConversation(msgs) {
		blocks, err := e.FormBlocks(group, strategy)
		if err != nil {
			return stored, err
		}
		n, err := e.storeBlocks(ctx, group, blocks)
		stored += n
		if err != nil {
			return stored, err
		}
	}

	e.logger.Info("indexed messages",
		"messages", len(msgs),
		"blocks", stored,
		"strategy", strategy)

	return stored, nil
}

// storeBlocks embeds block texts in provider-sized batches and writes one
// record per block.
func (e *Engine) storeBlocks(ctx context.Context, msgs []models.Message, blocks []models.Block) (int, error) {
	stored := 0
	batchSize := e.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	for offset := 0; offset < len(blocks); offset += batchSize {
		end := offset + batchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		batch := blocks[offset:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		vectors, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			e.countEmbedding("error")
			return stored, fmt.Errorf("failed to embed blocks: %w", err)
		}
		e.countEmbedding("success")

		for i := range batch {
			rec := &models.EmbeddingRecord{
				Text:     batch[i].Text,
				Vector:   vectors[i],
				Metadata: blockMetadata(msgs, &batch[i]),
			}
			if err := e.store.InsertRecord(ctx, rec); err != nil {
				e.countStoreError("insert")
				return stored, fmt.Errorf("failed to store block record: %w", err)
			}
			stored++
		}
	}

	return stored, nil
}

// blockMetadata derives record metadata for a block from its messages.
func blockMetadata(msgs []models.Message, block *models.Block) models.RecordMetadata {
	first := msgs[block.Indices[0]]

	meta := models.RecordMetadata{
		Chunk:          true,
		ConversationID: first.ConversationID,
		Source:         first.Source,
		Participants:   block.Participants,
		MessageCount:   block.MessageCount,
		Timestamp:      block.StartTimestamp.Format(time.RFC3339),
	}
	applyTemporal(&meta, block.StartTimestamp)

	return meta
}

// applyTemporal fills the temporal enrichment fields from a timestamp,
// leaving already-set fields alone.
func applyTemporal(meta *models.RecordMetadata, ts time.Time) {
	if ts.IsZero() || meta.PeriodLabel != "" {
		return
	}
	tm := temporal.Compute(ts)
	meta.Year = tm.Year
	meta.Month = tm.Month
	meta.Season = tm.Season
	meta.PeriodLabel = tm.PeriodLabel
	meta.TimeRange = tm.TimeRange
}

// groupByConversation splits messages into per-conversation groups,
// preserving the input order within each group. Group order follows first
// appearance to keep indexing deterministic.
func groupByConversation(msgs []models.Message) [][]models.Message {
	order := make(map[string]int)
	groups := make([][]models.Message, 0, 4)

	for i := range msgs {
		id := msgs[i].ConversationID
		idx, ok := order[id]
		if !ok {
			idx = len(groups)
			order[id] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], msgs[i])
	}

	for i := range groups {
		sort.SliceStable(groups[i], func(a, b int) bool {
			return groups[i][a].Timestamp.Before(groups[i][b].Timestamp)
		})
	}

	return groups
}

func (e *Engine) countEmbedding(status string) {
	if e.metrics != nil {
		e.metrics.EmbeddingRequests.WithLabelValues(e.embedder.Name(), status).Inc()
	}
}

func (e *Engine) countStoreError(operation string) {
	if e.metrics != nil {
		e.metrics.StoreErrors.WithLabelValues(operation).Inc()
	}
}
