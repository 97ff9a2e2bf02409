// Package sqlite provides a vector store backed by SQLite via the pure-Go
// modernc driver. Similarity is computed in-process over candidate rows,
// which keeps the backend dependency-free and portable; it is the default
// store for single-user deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store implements store.Store using SQLite.
type Store struct {
	db        *sql.DB
	dimension int
}

var _ store.Store = (*Store)(nil)

// Config contains configuration for the SQLite store.
type Config struct {
	Path      string // Path to database file; ":memory:" for tests
	Dimension int    // Embedding dimension
}

// New creates a new SQLite-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer, and pooled connections would each get
	// their own :memory: database.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:        db,
		dimension: cfg.Dimension,
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			sender TEXT,
			recipient TEXT,
			recipients TEXT,
			timestamp DATETIME,
			source TEXT,
			conversation_id TEXT,
			owner_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			message_id TEXT,
			conversation_id TEXT,
			source TEXT,
			chunk INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)",
		"CREATE INDEX IF NOT EXISTS idx_embeddings_message ON embeddings(message_id)",
		"CREATE INDEX IF NOT EXISTS idx_embeddings_conversation ON embeddings(conversation_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// InsertMessages persists source messages in one transaction.
func (s *Store) InsertMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO messages (id, content, sender, recipient, recipients, timestamp, source, conversation_id, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" {
			m.ID = uuid.New().String()
		}

		var recipients sql.NullString
		if len(m.Recipients) > 0 {
			data, err := json.Marshal(m.Recipients)
			if err != nil {
				return fmt.Errorf("failed to marshal recipients: %w", err)
			}
			recipients = sql.NullString{String: string(data), Valid: true}
		}

		_, err = stmt.ExecContext(ctx,
			m.ID,
			m.Content,
			nullString(m.Sender),
			nullString(m.Recipient),
			recipients,
			m.Timestamp.UTC(),
			nullString(string(m.Source)),
			nullString(m.ConversationID),
			nullString(m.OwnerID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// InsertRecord writes one embedding record.
func (s *Store) InsertRecord(ctx context.Context, rec *models.EmbeddingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if len(rec.Vector) != s.dimension {
		return fmt.Errorf("vector dimension %d does not match store dimension %d", len(rec.Vector), s.dimension)
	}

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	chunk := 0
	if rec.Metadata.Chunk {
		chunk = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (id, message_id, conversation_id, source, chunk, text, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		nullString(rec.MessageID),
		nullString(rec.Metadata.ConversationID),
		nullString(string(rec.Metadata.Source)),
		chunk,
		rec.Text,
		string(metadata),
		encodeEmbedding(rec.Vector),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Search scans candidate rows for the owner and applies similarity and
// predicate filters in-process.
func (s *Store) Search(ctx context.Context, embedding []float32, opts *store.SearchOptions) ([]*store.Candidate, error) {
	// Work on a copy; the caller's options are never mutated.
	var o store.SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.Limit <= 0 {
		o.Limit = 10
	}

	// Empty non-nil source list forces an empty result.
	if o.Sources != nil && len(o.Sources) == 0 {
		return nil, nil
	}

	query := `
		SELECT e.id, e.message_id, e.text, e.metadata, e.embedding, e.created_at,
		       m.id, m.content, m.sender, m.recipient, m.recipients, m.timestamp, m.source, m.conversation_id, m.owner_id
		FROM embeddings e
		LEFT JOIN messages m ON m.id = e.message_id
		WHERE (
			(e.message_id IS NOT NULL AND m.owner_id = ?)
			OR (e.message_id IS NULL AND EXISTS (
				SELECT 1 FROM messages mm
				WHERE mm.conversation_id = e.conversation_id AND mm.owner_id = ?
			))
		)
	`
	args := []any{o.OwnerID, o.OwnerID}

	if o.ConversationID != "" {
		query += " AND e.conversation_id = ?"
		args = append(args, o.ConversationID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.QueryFailed(err)
	}
	defer rows.Close()

	var candidates []*store.Candidate
	for rows.Next() {
		cand, blob, err := scanCandidate(rows)
		if err != nil {
			return nil, store.QueryFailed(err)
		}

		vector := decodeEmbedding(blob)
		similarity := cosineSimilarity(embedding, vector)
		if similarity < o.Threshold {
			continue
		}
		cand.Similarity = similarity

		if !matchesPredicates(cand, &o) {
			continue
		}

		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, store.QueryFailed(err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > o.Limit {
		candidates = candidates[:o.Limit]
	}

	return candidates, nil
}

func matchesPredicates(cand *store.Candidate, opts *store.SearchOptions) bool {
	if len(opts.Sources) > 0 && !cand.MatchesSource(opts.Sources) {
		return false
	}
	if opts.Sender != "" {
		msgSender := ""
		if cand.Message != nil {
			msgSender = cand.Message.Sender
		}
		if cand.Record.Metadata.Sender != opts.Sender && msgSender != opts.Sender {
			return false
		}
	}
	if opts.Recipient != "" && !cand.MatchesRecipient(opts.Recipient) {
		return false
	}
	if opts.Language != "" && cand.Record.Metadata.Language != opts.Language {
		return false
	}
	return true
}

// DeleteConversation removes an owner's conversation messages together with
// the records backed by them. Conversation IDs are shared across owners, so
// block records (which carry no message of their own) are only removed once
// no messages remain in the conversation.
func (s *Store) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings WHERE message_id IN (
			SELECT id FROM messages WHERE conversation_id = ? AND owner_id = ?
		)`, conversationID, ownerID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ? AND owner_id = ?", conversationID, ownerID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE conversation_id = ? AND message_id IS NULL
		AND NOT EXISTS (SELECT 1 FROM messages WHERE conversation_id = ?)`,
		conversationID, conversationID); err != nil {
		return fmt.Errorf("failed to delete block records: %w", err)
	}

	return tx.Commit()
}

// DeleteMessages removes messages by ID along with their records.
func (s *Store) DeleteMessages(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	recStmt, err := tx.PrepareContext(ctx, "DELETE FROM embeddings WHERE message_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer recStmt.Close()

	msgStmt, err := tx.PrepareContext(ctx, "DELETE FROM messages WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer msgStmt.Close()

	for _, id := range messageIDs {
		if _, err := recStmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete records for message %s: %w", id, err)
		}
		if _, err := msgStmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Stats returns message, record, and block counts.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{Dimension: s.dimension}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE chunk = 1").Scan(&stats.TotalBlocks); err != nil {
		return nil, fmt.Errorf("failed to count blocks: %w", err)
	}

	return stats, nil
}

// Dimension returns the store-wide fixed vector dimension.
func (s *Store) Dimension() int {
	return s.dimension
}

// Close releases resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Helper functions

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func scanCandidate(rows *sql.Rows) (*store.Candidate, []byte, error) {
	var rec models.EmbeddingRecord
	var messageID, metadataJSON sql.NullString
	var blob []byte

	var msgID, msgContent, msgSender, msgRecipient, msgRecipients sql.NullString
	var msgSource, msgConversation, msgOwner sql.NullString
	var msgTimestamp sql.NullTime

	err := rows.Scan(
		&rec.ID,
		&messageID,
		&rec.Text,
		&metadataJSON,
		&blob,
		&rec.CreatedAt,
		&msgID,
		&msgContent,
		&msgSender,
		&msgRecipient,
		&msgRecipients,
		&msgTimestamp,
		&msgSource,
		&msgConversation,
		&msgOwner,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan row: %w", err)
	}

	rec.MessageID = messageID.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	cand := &store.Candidate{Record: &rec}

	if msgID.Valid {
		msg := &models.Message{
			ID:             msgID.String,
			Content:        msgContent.String,
			Sender:         msgSender.String,
			Recipient:      msgRecipient.String,
			Source:         models.Source(msgSource.String),
			ConversationID: msgConversation.String,
			OwnerID:        msgOwner.String,
		}
		if msgTimestamp.Valid {
			msg.Timestamp = msgTimestamp.Time
		}
		if msgRecipients.Valid && msgRecipients.String != "" {
			if err := json.Unmarshal([]byte(msgRecipients.String), &msg.Recipients); err != nil {
				return nil, nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
			}
		}
		cand.Message = msg
	}

	return cand, blob, nil
}

// encodeEmbedding converts []float32 to bytes for storage.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// decodeEmbedding converts bytes back to []float32.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
