package sqlite

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/minimee-ai/recall/internal/store"
	"github.com/minimee-ai/recall/pkg/models"
)

const testDim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: ":memory:", Dimension: testDim})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func unitVector(direction int) []float32 {
	v := make([]float32, testDim)
	v[direction%testDim] = 1
	return v
}

func seedMessage(t *testing.T, s *Store, id, owner, conversation string, source models.Source) models.Message {
	t.Helper()
	msg := models.Message{
		ID:             id,
		Content:        "content of " + id,
		Sender:         "alice",
		Recipient:      "bob",
		Timestamp:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Source:         source,
		ConversationID: conversation,
		OwnerID:        owner,
	}
	if err := s.InsertMessages(context.Background(), []models.Message{msg}); err != nil {
		t.Fatalf("InsertMessages error: %v", err)
	}
	return msg
}

func seedRecord(t *testing.T, s *Store, id, messageID string, vector []float32, meta models.RecordMetadata) {
	t.Helper()
	err := s.InsertRecord(context.Background(), &models.EmbeddingRecord{
		ID:        id,
		Text:      "text of " + id,
		Vector:    vector,
		Metadata:  meta,
		MessageID: messageID,
	})
	if err != nil {
		t.Fatalf("InsertRecord error: %v", err)
	}
}

func TestInsertRecord_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertRecord(context.Background(), &models.EmbeddingRecord{
		ID:     "r1",
		Text:   "x",
		Vector: []float32{1, 2},
	})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSearch_IdenticalVectorScoresOne(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{
		Sender: "alice", Source: models.SourceWhatsApp, ConversationID: "conv-1",
	})

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10, Threshold: 0.2,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1", len(cands))
	}
	if math.Abs(cands[0].Similarity-1.0) > 1e-6 {
		t.Errorf("Similarity = %v, want ~1.0", cands[0].Similarity)
	}
	if cands[0].Message == nil || cands[0].Message.ID != "m1" {
		t.Error("candidate should carry its source message")
	}
}

func TestSearch_ThresholdFiltersOrthogonal(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m1", unitVector(1), models.RecordMetadata{ConversationID: "conv-1"})

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10, Threshold: 0.2,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "r1" {
		t.Fatalf("orthogonal vector should be filtered, got %d candidates", len(cands))
	}
}

func TestSearch_OwnershipScoping(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedMessage(t, s, "m2", "owner-2", "conv-2", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m2", unitVector(0), models.RecordMetadata{ConversationID: "conv-2"})

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "r1" {
		t.Fatalf("ownership scoping failed: got %+v", cands)
	}
}

func TestSearch_BlockOwnershipViaConversation(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)

	// Block record: no message_id, owned through conversation membership.
	seedRecord(t, s, "blk1", "", unitVector(0), models.RecordMetadata{
		Chunk: true, ConversationID: "conv-1", Participants: []string{"alice", "bob"},
	})

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "blk1" {
		t.Fatalf("block ownership via conversation failed: got %d candidates", len(cands))
	}
	if cands[0].Message != nil {
		t.Error("block candidate should not carry a message")
	}

	// A different owner must not see the block.
	cands, err = s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-2", Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("foreign owner sees %d candidates, want 0", len(cands))
	}
}

func TestSearch_SourceTriState(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedMessage(t, s, "m2", "owner-1", "conv-1", models.SourceGmail)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{Source: models.SourceWhatsApp, ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m2", unitVector(0), models.RecordMetadata{Source: models.SourceGmail, ConversationID: "conv-1"})

	ctx := context.Background()

	t.Run("nil means all sources", func(t *testing.T) {
		cands, err := s.Search(ctx, unitVector(0), &store.SearchOptions{OwnerID: "owner-1", Limit: 10})
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		if len(cands) != 2 {
			t.Errorf("got %d candidates, want 2", len(cands))
		}
	})

	t.Run("empty non-nil forces empty result", func(t *testing.T) {
		cands, err := s.Search(ctx, unitVector(0), &store.SearchOptions{
			OwnerID: "owner-1", Limit: 10, Sources: []models.Source{},
		})
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		if len(cands) != 0 {
			t.Errorf("got %d candidates, want 0", len(cands))
		}
	})

	t.Run("explicit list filters", func(t *testing.T) {
		cands, err := s.Search(ctx, unitVector(0), &store.SearchOptions{
			OwnerID: "owner-1", Limit: 10, Sources: []models.Source{models.SourceGmail},
		})
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		if len(cands) != 1 || cands[0].Record.ID != "r2" {
			t.Errorf("source filter failed: got %+v", cands)
		}
	})
}

func TestSearch_RecipientMatchesAnyCarrier(t *testing.T) {
	s := newTestStore(t)

	msgs := []models.Message{
		{
			ID: "m1", Content: "direct", Sender: "alice", Recipient: "carol",
			Timestamp: time.Now(), Source: models.SourceGmail, ConversationID: "conv-1", OwnerID: "owner-1",
		},
		{
			ID: "m2", Content: "group", Sender: "alice", Recipients: []string{"dave", "erin"},
			Timestamp: time.Now(), Source: models.SourceGmail, ConversationID: "conv-1", OwnerID: "owner-1",
		},
	}
	if err := s.InsertMessages(context.Background(), msgs); err != nil {
		t.Fatalf("InsertMessages error: %v", err)
	}
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m2", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "blk", "", unitVector(0), models.RecordMetadata{
		Chunk: true, ConversationID: "conv-1", Recipients: []string{"carol"},
	})

	tests := []struct {
		recipient string
		wantIDs   map[string]bool
	}{
		{"carol", map[string]bool{"r1": true, "blk": true}},
		{"dave", map[string]bool{"r2": true}},
		{"nobody", map[string]bool{}},
	}

	for _, tt := range tests {
		cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
			OwnerID: "owner-1", Limit: 10, Recipient: tt.recipient,
		})
		if err != nil {
			t.Fatalf("Search error: %v", err)
		}
		if len(cands) != len(tt.wantIDs) {
			t.Errorf("recipient %q: got %d candidates, want %d", tt.recipient, len(cands), len(tt.wantIDs))
			continue
		}
		for _, c := range cands {
			if !tt.wantIDs[c.Record.ID] {
				t.Errorf("recipient %q: unexpected candidate %s", tt.recipient, c.Record.ID)
			}
		}
	}
}

func TestSearch_LanguageAndSenderFilters(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedRecord(t, s, "r-en", "m1", unitVector(0), models.RecordMetadata{
		Sender: "alice", Language: "en", ConversationID: "conv-1",
	})
	seedRecord(t, s, "r-it", "m1", unitVector(0), models.RecordMetadata{
		Sender: "bruno", Language: "it", ConversationID: "conv-1",
	})

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10, Language: "it",
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "r-it" {
		t.Fatalf("language filter failed: got %+v", cands)
	}

	cands, err = s.Search(context.Background(), unitVector(0), &store.SearchOptions{
		OwnerID: "owner-1", Limit: 10, Sender: "bruno",
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "r-it" {
		t.Fatalf("sender filter failed: got %+v", cands)
	}
}

func TestSearch_LimitAndOrdering(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)

	// Three vectors at decreasing similarity to the query.
	query := []float32{1, 0, 0, 0}
	seedRecord(t, s, "close", "m1", []float32{1, 0.1, 0, 0}, models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "closer", "m1", []float32{1, 0.01, 0, 0}, models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "far", "m1", []float32{1, 1, 1, 1}, models.RecordMetadata{ConversationID: "conv-1"})

	cands, err := s.Search(context.Background(), query, &store.SearchOptions{
		OwnerID: "owner-1", Limit: 2, Threshold: 0.1,
	})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cands))
	}
	if cands[0].Record.ID != "closer" || cands[1].Record.ID != "close" {
		t.Errorf("ordering wrong: %s, %s", cands[0].Record.ID, cands[1].Record.ID)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedMessage(t, s, "m2", "owner-1", "conv-2", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "blk", "", unitVector(0), models.RecordMetadata{Chunk: true, ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m2", unitVector(0), models.RecordMetadata{ConversationID: "conv-2"})

	if err := s.DeleteConversation(context.Background(), "owner-1", "conv-1"); err != nil {
		t.Fatalf("DeleteConversation error: %v", err)
	}

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Errorf("TotalRecords = %d, want 1", stats.TotalRecords)
	}
	if stats.TotalMessages != 1 {
		t.Errorf("TotalMessages = %d, want 1", stats.TotalMessages)
	}
	if stats.TotalBlocks != 0 {
		t.Errorf("TotalBlocks = %d, want 0", stats.TotalBlocks)
	}
}

func TestDeleteConversation_ScopedToOwner(t *testing.T) {
	s := newTestStore(t)

	// Two owners share one conversation ID; derived IDs carry no owner
	// component, so deletion must not cross account boundaries.
	seedMessage(t, s, "ma", "owner-a", "whatsapp:Alice|Bob", models.SourceWhatsApp)
	seedMessage(t, s, "mb", "owner-b", "whatsapp:Alice|Bob", models.SourceWhatsApp)
	seedRecord(t, s, "ra", "ma", unitVector(0), models.RecordMetadata{ConversationID: "whatsapp:Alice|Bob"})
	seedRecord(t, s, "rb", "mb", unitVector(0), models.RecordMetadata{ConversationID: "whatsapp:Alice|Bob"})
	seedRecord(t, s, "blk", "", unitVector(0), models.RecordMetadata{Chunk: true, ConversationID: "whatsapp:Alice|Bob"})

	if err := s.DeleteConversation(context.Background(), "owner-a", "whatsapp:Alice|Bob"); err != nil {
		t.Fatalf("DeleteConversation error: %v", err)
	}

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{OwnerID: "owner-b", Limit: 10})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range cands {
		ids[c.Record.ID] = true
	}
	if !ids["rb"] {
		t.Error("owner B's record destroyed by owner A's deletion")
	}
	if !ids["blk"] {
		t.Error("block record removed while owner B still has messages in the conversation")
	}
	if ids["ra"] {
		t.Error("owner A's record survived its own deletion")
	}

	// Once the last owner deletes, the block record goes too.
	if err := s.DeleteConversation(context.Background(), "owner-b", "whatsapp:Alice|Bob"); err != nil {
		t.Fatalf("DeleteConversation error: %v", err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.TotalRecords != 0 || stats.TotalMessages != 0 {
		t.Errorf("records=%d messages=%d after both owners deleted, want 0/0", stats.TotalRecords, stats.TotalMessages)
	}
}

func TestDeleteMessages(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedMessage(t, s, "m2", "owner-1", "conv-1", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})
	seedRecord(t, s, "r2", "m2", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})

	if err := s.DeleteMessages(context.Background(), []string{"m1"}); err != nil {
		t.Fatalf("DeleteMessages error: %v", err)
	}

	cands, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{OwnerID: "owner-1", Limit: 10})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(cands) != 1 || cands[0].Record.ID != "r2" {
		t.Fatalf("got %+v, want only r2", cands)
	}
}

func TestSearch_DoesNotMutateOptions(t *testing.T) {
	s := newTestStore(t)
	seedMessage(t, s, "m1", "owner-1", "conv-1", models.SourceWhatsApp)
	seedRecord(t, s, "r1", "m1", unitVector(0), models.RecordMetadata{ConversationID: "conv-1"})

	opts := &store.SearchOptions{OwnerID: "owner-1"}
	if _, err := s.Search(context.Background(), unitVector(0), opts); err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if opts.Limit != 0 {
		t.Errorf("Search wrote Limit = %d into the caller's options", opts.Limit)
	}
}

func TestSearch_QueryFailureWrapsSentinel(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	_, err := s.Search(context.Background(), unitVector(0), &store.SearchOptions{OwnerID: "owner-1"})
	if err == nil {
		t.Fatal("expected error on closed store")
	}
	if !errors.Is(err, store.ErrQueryFailed) {
		t.Errorf("error %v should wrap store.ErrQueryFailed", err)
	}
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("round trip length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
