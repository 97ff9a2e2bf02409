// Package pgvector provides a vector store backed by PostgreSQL with the
// pgvector extension. Similarity and predicate filtering run inside the
// database, which scales past what the in-process SQLite store handles.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq" // PostgreSQL driver
	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/pkg/models"
)

// Store implements store.Store using pgvector.
type Store struct {
	db        *sql.DB
	dimension int
	ownsDB    bool // whether this store opened the connection and should close it
}

var _ store.Store = (*Store)(nil)

// Config contains configuration for the pgvector store.
type Config struct {
	// DSN is the PostgreSQL connection string. If empty, DB must be
	// provided.
	DSN string

	// DB is an existing database connection to reuse. When provided, DSN
	// is ignored and the store will not close the connection.
	DB *sql.DB

	// Dimension is the embedding dimension.
	Dimension int

	// InitSchema controls whether to create tables on startup.
	// Default is true when DSN is used.
	InitSchema bool
}

// New creates a new pgvector store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	var db *sql.DB
	var ownsDB bool
	var err error

	if cfg.DB != nil {
		db = cfg.DB
		ownsDB = false
	} else if cfg.DSN != "" {
		db, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		ownsDB = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	} else {
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{
		db:        db,
		dimension: cfg.Dimension,
		ownsDB:    ownsDB,
	}

	if cfg.InitSchema {
		if err := s.initSchema(context.Background()); err != nil {
			if ownsDB {
				db.Close()
			}
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			sender TEXT,
			recipient TEXT,
			recipients JSONB,
			timestamp TIMESTAMPTZ,
			source TEXT,
			conversation_id TEXT,
			owner_id TEXT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			message_id TEXT,
			conversation_id TEXT,
			source TEXT,
			chunk BOOLEAN NOT NULL DEFAULT FALSE,
			text TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dimension),
		"CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)",
		"CREATE INDEX IF NOT EXISTS idx_embeddings_message ON embeddings(message_id)",
		"CREATE INDEX IF NOT EXISTS idx_embeddings_conversation ON embeddings(conversation_id)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
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
		INSERT INTO messages (id, content, sender, recipient, recipients, timestamp, source, conversation_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			sender = EXCLUDED.sender,
			recipient = EXCLUDED.recipient,
			recipients = EXCLUDED.recipients,
			timestamp = EXCLUDED.timestamp,
			source = EXCLUDED.source,
			conversation_id = EXCLUDED.conversation_id,
			owner_id = EXCLUDED.owner_id
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

		var recipients any
		if len(m.Recipients) > 0 {
			data, err := json.Marshal(m.Recipients)
			if err != nil {
				return fmt.Errorf("failed to marshal recipients: %w", err)
			}
			recipients = string(data)
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, message_id, conversation_id, source, chunk, text, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9)
		ON CONFLICT (id) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			conversation_id = EXCLUDED.conversation_id,
			source = EXCLUDED.source,
			chunk = EXCLUDED.chunk,
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`,
		rec.ID,
		nullString(rec.MessageID),
		nullString(rec.Metadata.ConversationID),
		nullString(string(rec.Metadata.Source)),
		rec.Metadata.Chunk,
		rec.Text,
		string(metadata),
		encodeVector(rec.Vector),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Search runs similarity and predicate filtering in SQL and returns
// candidates ordered by similarity descending.
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

	queryVec := encodeVector(embedding)

	query := `
		SELECT e.id, e.message_id, e.text, e.metadata, e.created_at,
		       m.id, m.content, m.sender, m.recipient, m.recipients, m.timestamp, m.source, m.conversation_id, m.owner_id,
		       1 - (e.embedding <=> $1::vector) AS similarity
		FROM embeddings e
		LEFT JOIN messages m ON m.id = e.message_id
		WHERE e.embedding IS NOT NULL
		AND (
			(e.message_id IS NOT NULL AND m.owner_id = $2)
			OR (e.message_id IS NULL AND EXISTS (
				SELECT 1 FROM messages mm
				WHERE mm.conversation_id = e.conversation_id AND mm.owner_id = $2
			))
		)
	`
	args := []any{queryVec, o.OwnerID}
	argNum := 3

	if o.Threshold > 0 {
		query += fmt.Sprintf(" AND (1 - (e.embedding <=> $1::vector)) >= $%d", argNum)
		args = append(args, o.Threshold)
		argNum++
	}
	if o.ConversationID != "" {
		query += fmt.Sprintf(" AND e.conversation_id = $%d", argNum)
		args = append(args, o.ConversationID)
		argNum++
	}
	if len(o.Sources) > 0 {
		sources := make([]string, len(o.Sources))
		for i, src := range o.Sources {
			sources[i] = string(src)
		}
		query += fmt.Sprintf(" AND (e.source = ANY($%d) OR m.source = ANY($%d))", argNum, argNum)
		args = append(args, pq.Array(sources))
		argNum++
	}
	if o.Sender != "" {
		query += fmt.Sprintf(" AND (e.metadata->>'sender' = $%d OR m.sender = $%d)", argNum, argNum)
		args = append(args, o.Sender)
		argNum++
	}
	if o.Recipient != "" {
		query += fmt.Sprintf(` AND (
			m.recipient = $%d
			OR m.recipients @> to_jsonb($%d::text)
			OR e.metadata->>'recipient' = $%d
			OR e.metadata->'recipients' @> to_jsonb($%d::text)
		)`, argNum, argNum, argNum, argNum)
		args = append(args, o.Recipient)
		argNum++
	}
	if o.Language != "" {
		query += fmt.Sprintf(" AND e.metadata->>'language' = $%d", argNum)
		args = append(args, o.Language)
		argNum++
	}

	query += " ORDER BY e.embedding <=> $1::vector ASC"
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, o.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.QueryFailed(err)
	}
	defer rows.Close()

	var candidates []*store.Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, store.QueryFailed(err)
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, store.QueryFailed(err)
	}

	return candidates, nil
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
			SELECT id FROM messages WHERE conversation_id = $1 AND owner_id = $2
		)`, conversationID, ownerID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = $1 AND owner_id = $2", conversationID, ownerID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE conversation_id = $1 AND message_id IS NULL
		AND NOT EXISTS (SELECT 1 FROM messages WHERE conversation_id = $1)`,
		conversationID); err != nil {
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

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE message_id = ANY($1)", pq.Array(messageIDs)); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE id = ANY($1)", pq.Array(messageIDs)); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
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
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE chunk").Scan(&stats.TotalBlocks); err != nil {
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
	if s.ownsDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Helper functions

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func scanCandidate(rows *sql.Rows) (*store.Candidate, error) {
	var rec models.EmbeddingRecord
	var messageID, metadataJSON sql.NullString

	var msgID, msgContent, msgSender, msgRecipient, msgRecipients sql.NullString
	var msgSource, msgConversation, msgOwner sql.NullString
	var msgTimestamp sql.NullTime
	var similarity float64

	err := rows.Scan(
		&rec.ID,
		&messageID,
		&rec.Text,
		&metadataJSON,
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
		&similarity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	rec.MessageID = messageID.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	cand := &store.Candidate{Record: &rec, Similarity: similarity}

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
				return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
			}
		}
		cand.Message = msg
	}

	return cand, nil
}

// encodeVector converts []float32 to pgvector string format: [0.1,0.2,...]
func encodeVector(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}
