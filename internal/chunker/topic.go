package chunker

import (
	"strings"
	"time"

	"github.com/minimee-ai/recall/pkg/models"
)

// DefaultTopicCategories maps topic names to keyword sets used by the
// topic-change heuristic. The sets are tunable, not a guaranteed semantic
// signal; they only need to produce plausible segmentation.
var DefaultTopicCategories = map[string][]string{
	"work":    {"work", "meeting", "boss", "office", "deadline", "client", "shift", "colleague", "salary"},
	"family":  {"mom", "dad", "mother", "father", "sister", "brother", "kids", "family", "grandma", "grandpa"},
	"couple":  {"love", "miss you", "date", "dinner", "babe", "honey", "darling", "anniversary"},
	"health":  {"doctor", "sick", "medicine", "hospital", "appointment", "pain", "fever", "pharmacy"},
	"daily":   {"groceries", "shopping", "cooking", "cleaning", "laundry", "errands", "lunch", "breakfast"},
	"project": {"project", "code", "design", "release", "bug", "repo", "deploy", "review"},
}

// interrogatives are leading words that mark a message as a question even
// without a question mark.
var interrogatives = []string{
	"what", "why", "how", "when", "where", "who", "which",
	"can", "could", "would", "should", "do", "does", "did", "is", "are",
}

// TopicAware segments by conversational rhythm: long silences, block spans
// exceeding the time window, and heuristic topic changes all force a new
// block. It is the real-time and thread-aware ingestion strategy.
type TopicAware struct {
	config     Config
	categories map[string][]string
}

var _ Chunker = (*TopicAware)(nil)

// NewTopicAware creates a time/topic-aware chunker with the default
// keyword categories.
func NewTopicAware(cfg Config) *TopicAware {
	return &TopicAware{
		config:     cfg.withDefaults(),
		categories: DefaultTopicCategories,
	}
}

// WithCategories overrides the topic keyword sets.
func (t *TopicAware) WithCategories(categories map[string][]string) *TopicAware {
	t.categories = categories
	return t
}

// Name returns the strategy name.
func (t *TopicAware) Name() string {
	return "topic_aware"
}

// Chunk closes the current block before adding a message when, relative to
// the previous buffered message, any of the following holds: the gap
// exceeds SilenceThreshold, the block span would exceed TimeWindow, or the
// topic-change heuristic fires. The trailing buffer, even a single
// message, is always flushed.
func (t *TopicAware) Chunk(msgs []models.Message) []models.Block {
	if len(msgs) == 0 {
		return nil
	}

	var blocks []models.Block
	var buffer []int

	for i := range msgs {
		if len(buffer) > 0 {
			prev := msgs[buffer[len(buffer)-1]]
			first := msgs[buffer[0]]
			gap := msgs[i].Timestamp.Sub(prev.Timestamp)
			span := msgs[i].Timestamp.Sub(first.Timestamp)

			if gap > t.config.SilenceThreshold ||
				span > t.config.TimeWindow ||
				t.topicChanged(prev.Content, msgs[i].Content, gap) {
				blocks = append(blocks, finalizeBlock(msgs, buffer))
				buffer = nil
			}
		}
		buffer = append(buffer, i)
	}

	blocks = append(blocks, finalizeBlock(msgs, buffer))
	return blocks
}

// topicChanged fires when both messages match keyword categories and the
// category sets differ, or when exactly one of the two is a question and
// the gap is large enough to suggest a fresh thread.
func (t *TopicAware) topicChanged(prev, cur string, gap time.Duration) bool {
	prevCats := t.classify(prev)
	curCats := t.classify(cur)

	if len(prevCats) > 0 && len(curCats) > 0 && !sameCategories(prevCats, curCats) {
		return true
	}

	if isQuestion(prev) != isQuestion(cur) && gap > t.config.TopicShiftGap {
		return true
	}

	return false
}

// classify returns the set of categories whose keywords appear in text.
func (t *TopicAware) classify(text string) map[string]struct{} {
	lower := strings.ToLower(text)
	cats := make(map[string]struct{})
	for name, keywords := range t.categories {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				cats[name] = struct{}{}
				break
			}
		}
	}
	return cats
}

func sameCategories(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func isQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	for _, w := range interrogatives {
		if fields[0] == w {
			return true
		}
	}
	return false
}
