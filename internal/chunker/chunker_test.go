package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/minimee-ai/recall/pkg/models"
)

func msgAt(ts time.Time, sender, content string) models.Message {
	return models.Message{
		ID:             fmt.Sprintf("m-%d", ts.UnixNano()),
		Content:        content,
		Sender:         sender,
		Timestamp:      ts,
		Source:         models.SourceWhatsApp,
		ConversationID: "conv-1",
	}
}

func sequence(start time.Time, step time.Duration, n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := 0; i < n; i++ {
		msgs[i] = msgAt(start.Add(time.Duration(i)*step), fmt.Sprintf("sender-%d", i%2), fmt.Sprintf("message %d", i))
	}
	return msgs
}

// assertPartition checks the core block invariant: indices are contiguous,
// order-preserving, non-overlapping, and cover every input exactly once.
func assertPartition(t *testing.T, blocks []models.Block, total int) {
	t.Helper()
	next := 0
	for bi, b := range blocks {
		if len(b.Indices) == 0 {
			t.Fatalf("block %d has no indices", bi)
		}
		for _, idx := range b.Indices {
			if idx != next {
				t.Fatalf("block %d: index %d, want %d (partition broken)", bi, idx, next)
			}
			next++
		}
		if b.MessageCount != len(b.Indices) {
			t.Errorf("block %d: MessageCount = %d, want %d", bi, b.MessageCount, len(b.Indices))
		}
	}
	if next != total {
		t.Fatalf("blocks cover %d messages, want %d", next, total)
	}
}

func TestFixedWindow_Empty(t *testing.T) {
	c := NewFixedWindow(DefaultConfig())
	if got := c.Chunk(nil); got != nil {
		t.Errorf("Chunk(nil) = %v, want nil", got)
	}
}

func TestFixedWindow_ExactWindows(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := sequence(start, time.Minute, 10)

	blocks := NewFixedWindow(DefaultConfig()).Chunk(msgs)
	assertPartition(t, blocks, 10)

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	for i, b := range blocks {
		if b.MessageCount != 5 {
			t.Errorf("block %d: MessageCount = %d, want 5", i, b.MessageCount)
		}
	}
}

func TestFixedWindow_TailKeptWhenLargeEnough(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := sequence(start, time.Minute, 8) // 5 + 3

	blocks := NewFixedWindow(DefaultConfig()).Chunk(msgs)
	assertPartition(t, blocks, 8)

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[1].MessageCount != 3 {
		t.Errorf("tail MessageCount = %d, want 3", blocks[1].MessageCount)
	}
}

func TestFixedWindow_ShortTailMergedIntoPrevious(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := sequence(start, time.Minute, 7) // 5 + 2 -> merged into one block of 7

	blocks := NewFixedWindow(DefaultConfig()).Chunk(msgs)
	assertPartition(t, blocks, 7)

	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if b.MessageCount != 7 {
		t.Errorf("MessageCount = %d, want 7", b.MessageCount)
	}
	if want := 6.0; b.DurationMinutes != want {
		t.Errorf("DurationMinutes = %v, want %v", b.DurationMinutes, want)
	}
	if !b.EndTimestamp.Equal(msgs[6].Timestamp) {
		t.Errorf("EndTimestamp = %v, want %v (aggregates not recomputed on merge)", b.EndTimestamp, msgs[6].Timestamp)
	}
	if !strings.Contains(b.Text, "message 6") {
		t.Error("merged block text is missing the tail messages")
	}
}

func TestFixedWindow_ShortSequenceWithoutPreviousBlock(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := sequence(start, time.Minute, 2)

	blocks := NewFixedWindow(DefaultConfig()).Chunk(msgs)
	assertPartition(t, blocks, 2)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestFinalizeBlock_TextAndParticipants(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		msgAt(start, "alice", "hey"),
		msgAt(start.Add(time.Minute), "bob", "hi there"),
		msgAt(start.Add(2*time.Minute), "alice", "how was your day?"),
	}

	b := finalizeBlock(msgs, []int{0, 1, 2})

	want := "[alice]: hey\n[bob]: hi there\n[alice]: how was your day?"
	if b.Text != want {
		t.Errorf("Text = %q, want %q", b.Text, want)
	}
	if len(b.Participants) != 2 || b.Participants[0] != "alice" || b.Participants[1] != "bob" {
		t.Errorf("Participants = %v, want [alice bob]", b.Participants)
	}
	if b.DurationMinutes != 2 {
		t.Errorf("DurationMinutes = %v, want 2", b.DurationMinutes)
	}
}

func TestChunkers_PartitionProperty(t *testing.T) {
	// Random timestamp gaps must never break the partition invariant for
	// either strategy.
	rng := rand.New(rand.NewSource(42))
	chunkers := []Chunker{
		NewFixedWindow(DefaultConfig()),
		NewTopicAware(DefaultConfig()),
	}

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(40)
		ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		msgs := make([]models.Message, n)
		for i := 0; i < n; i++ {
			ts = ts.Add(time.Duration(rng.Intn(180)) * time.Minute)
			msgs[i] = msgAt(ts, "s", fmt.Sprintf("msg %d", i))
		}

		for _, c := range chunkers {
			blocks := c.Chunk(msgs)
			assertPartition(t, blocks, n)
		}
	}
}
