package models

import (
	"time"
)

// EmbeddingRecord is a stored unit of embedded text: either a single
// message or a synthesized conversational block. Records are written once
// at ingestion time and never mutated; they are removed only through bulk
// deletion tied to message or conversation deletion.
type EmbeddingRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// Vector is the embedding of Text. Every vector in a store shares the
	// store-wide fixed dimension.
	Vector []float32 `json:"-"`

	Metadata RecordMetadata `json:"metadata"`

	// MessageID links the record to its source message. It is empty when
	// the record represents a synthesized block (Metadata.Chunk is true).
	MessageID string `json:"message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RecordMetadata carries the well-known metadata keys attached to an
// embedding record, plus an open extension map for forward-compatible
// extras.
type RecordMetadata struct {
	Sender         string `json:"sender,omitempty"`
	Source         Source `json:"source,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Chunk marks records that represent a multi-message block.
	Chunk bool `json:"chunk,omitempty"`

	// Timestamp is the message or block timestamp in RFC 3339 form. It is
	// kept as a string so that records written by older clients with
	// unparsable timestamps still load; consumers fall back to a default
	// recency weight when parsing fails.
	Timestamp string `json:"timestamp,omitempty"`

	// Temporal enrichment, derived from Timestamp at write time.
	PeriodLabel string `json:"period_label,omitempty"`
	TimeRange   string `json:"time_range,omitempty"`
	Year        int    `json:"year,omitempty"`
	Month       int    `json:"month,omitempty"`
	Season      string `json:"season,omitempty"`

	Recipient  string   `json:"recipient,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Language   string   `json:"language,omitempty"`

	Tags         []string `json:"tags,omitempty"`
	Participants []string `json:"participants,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
	ThreadID     string   `json:"thread_id,omitempty"`
	Summary      string   `json:"summary,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// RecipientList normalizes the single and plural recipient fields into one
// slice, mirroring Message.RecipientList.
func (m *RecordMetadata) RecipientList() []string {
	if len(m.Recipients) > 0 {
		return m.Recipients
	}
	if m.Recipient != "" {
		return []string{m.Recipient}
	}
	return nil
}

// ParsedTimestamp returns the metadata timestamp as a time.Time. The second
// return value is false when the timestamp is absent or unparsable.
func (m *RecordMetadata) ParsedTimestamp() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
