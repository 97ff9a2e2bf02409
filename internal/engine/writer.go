package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/abadojack/whatlanggo"

	"github.com/minimee-ai/recall/pkg/models"
)

// minDetectionLength guards language detection against very short texts,
// where trigram detection is noise.
const minDetectionLength = 20

// StoreEmbedding embeds a text and writes it to the store as a single
// record. When msg is non-nil the message is persisted first and the
// record is linked to it; metadata fields the caller left empty are
// derived from the message and from the timestamp. Explicit caller values
// always win over derived ones.
//
// It returns the stored record's ID. Embedding failures wrap
// embeddings.ErrUnavailable.
func (e *Engine) StoreEmbedding(ctx context.Context, text string, meta models.RecordMetadata, msg *models.Message) (string, error) {
	if text == "" {
		return "", fmt.Errorf("cannot embed empty text")
	}

	messageID := ""
	if msg != nil {
		batch := []models.Message{*msg}
		if err := e.store.InsertMessages(ctx, batch); err != nil {
			e.countStoreError("insert")
			return "", fmt.Errorf("failed to store message: %w", err)
		}
		// The store assigns an ID to ID-less messages; carry it back so the
		// record links to the row that was actually written.
		msg.ID = batch[0].ID
		messageID = msg.ID
		deriveFromMessage(&meta, msg)
		if e.metrics != nil {
			e.metrics.MessagesIngested.WithLabelValues(string(msg.Source)).Inc()
		}
	}

	if ts, ok := meta.ParsedTimestamp(); ok {
		applyTemporal(&meta, ts)
	}
	if meta.Language == "" {
		meta.Language = detectLanguage(text)
	}

	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.countEmbedding("error")
		return "", fmt.Errorf("failed to embed text: %w", err)
	}
	e.countEmbedding("success")

	rec := &models.EmbeddingRecord{
		Text:      text,
		Vector:    vector,
		Metadata:  meta,
		MessageID: messageID,
	}
	if err := e.store.InsertRecord(ctx, rec); err != nil {
		e.countStoreError("insert")
		return "", fmt.Errorf("failed to store record: %w", err)
	}

	e.logger.Debug("stored embedding",
		"record_id", rec.ID,
		"message_id", messageID,
		"language", meta.Language)

	return rec.ID, nil
}

// deriveFromMessage fills empty metadata fields from the source message.
func deriveFromMessage(meta *models.RecordMetadata, msg *models.Message) {
	if meta.Sender == "" {
		meta.Sender = msg.Sender
	}
	if meta.Source == "" {
		meta.Source = msg.Source
	}
	if meta.ConversationID == "" {
		meta.ConversationID = msg.ConversationID
	}
	if meta.Recipient == "" && len(meta.Recipients) == 0 {
		meta.Recipient = msg.Recipient
		meta.Recipients = msg.Recipients
	}
	if meta.Timestamp == "" && !msg.Timestamp.IsZero() {
		meta.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
}

// detectLanguage returns the ISO 639-1 code of the text's language, or the
// empty string when detection is unreliable.
func detectLanguage(text string) string {
	if len(text) < minDetectionLength {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
