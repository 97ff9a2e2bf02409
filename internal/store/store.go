// Package store provides vector storage interfaces and implementations
// for embedding records and their source messages.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/minimee-ai/recall/pkg/models"
)

// ErrQueryFailed indicates a store-side search failure (connectivity,
// timeout). Retrieval callers treat it as "no candidates" and report it
// through logging; it must never reach the end caller of RetrieveContext.
var ErrQueryFailed = errors.New("vector store query failed")

// QueryFailed wraps a backend search failure so callers can match it with
// errors.Is(err, ErrQueryFailed).
func QueryFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrQueryFailed, err)
}

// Store defines the interface for vector storage backends. Implementations
// must be safe for concurrent use against a shared, append-mostly store.
type Store interface {
	// InsertMessages persists source messages. Messages back the ownership
	// predicate used by Search and the bulk deletion operations.
	InsertMessages(ctx context.Context, msgs []models.Message) error

	// InsertRecord writes one embedding record. The caller controls
	// batching and transactional boundaries beyond the single insert.
	InsertRecord(ctx context.Context, rec *models.EmbeddingRecord) error

	// Search returns candidates whose cosine similarity to the query
	// vector is at least opts.Threshold, subject to the predicate filters,
	// capped at opts.Limit and ordered by similarity descending.
	Search(ctx context.Context, embedding []float32, opts *SearchOptions) ([]*Candidate, error)

	// DeleteConversation removes an owner's messages for a conversation
	// together with every embedding record tied to it.
	DeleteConversation(ctx context.Context, ownerID, conversationID string) error

	// DeleteMessages removes messages by ID along with their records.
	DeleteMessages(ctx context.Context, messageIDs []string) error

	// Stats returns statistics about the store.
	Stats(ctx context.Context) (*Stats, error)

	// Dimension returns the store-wide fixed vector dimension.
	Dimension() int

	// Close releases resources.
	Close() error
}

// SearchOptions defines the predicate filters for Search.
type SearchOptions struct {
	// OwnerID scopes results to one account. Message-backed records match
	// through their message's owner; block records match when any message
	// in the block's conversation belongs to the owner.
	OwnerID string

	// ConversationID optionally restricts to a single conversation.
	ConversationID string

	// Sources is three-valued: nil means all sources, an empty non-nil
	// slice forces an empty result, and a non-empty slice matches records
	// whose metadata source or message source equals one of the entries.
	Sources []models.Source

	// Sender optionally filters on the metadata or message sender.
	Sender string

	// Recipient matches the message recipient, any entry of the message
	// recipients list, the metadata recipient, or any entry of the
	// metadata recipients list.
	Recipient string

	// Language optionally filters on the metadata language.
	Language string

	// Limit caps the number of candidates returned.
	Limit int

	// Threshold is the minimum cosine similarity.
	Threshold float64
}

// Candidate is a store search hit: the record, its source message when one
// exists (nil for block records), and the cosine similarity to the query.
type Candidate struct {
	Record     *models.EmbeddingRecord
	Message    *models.Message
	Similarity float64
}

// Stats contains statistics about a store.
type Stats struct {
	TotalMessages int64 `json:"total_messages"`
	TotalRecords  int64 `json:"total_records"`
	TotalBlocks   int64 `json:"total_blocks"`
	Dimension     int   `json:"dimension"`
}

// MatchesRecipient reports whether the candidate involves the given
// recipient through any of the four recipient carriers.
func (c *Candidate) MatchesRecipient(recipient string) bool {
	if c.Message != nil {
		for _, r := range c.Message.RecipientList() {
			if r == recipient {
				return true
			}
		}
	}
	for _, r := range c.Record.Metadata.RecipientList() {
		if r == recipient {
			return true
		}
	}
	return false
}

// MatchesSource reports whether the candidate's metadata source or message
// source equals any of the given sources.
func (c *Candidate) MatchesSource(sources []models.Source) bool {
	for _, s := range sources {
		if c.Record.Metadata.Source == s {
			return true
		}
		if c.Message != nil && c.Message.Source == s {
			return true
		}
	}
	return false
}
