// Package assembler renders ranked retrieval results into a bounded plain
// text block suitable for inclusion in an LLM prompt. Assembly is pure:
// identical input yields identical output and input is never mutated.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/minimee-ai/recall/pkg/models"
)

const (
	// NoContextSentinel is returned for empty input. Downstream prompt
	// builders match it to detect absence of history; it is never the
	// empty string.
	NoContextSentinel = "No relevant conversation history found."

	// TruncationMarker terminates assembled context that was cut to fit
	// the token budget.
	TruncationMarker = "[Context truncated due to length limit]"

	// DefaultMaxTokens bounds the assembled context size.
	DefaultMaxTokens = 2000

	// charsPerToken is the character-to-token approximation used for the
	// budget. Four characters per token is the usual English estimate.
	charsPerToken = 4

	header = "Relevant conversation history:"
)

// Config contains assembly parameters.
type Config struct {
	// MaxTokens is the approximate token budget for the assembled string.
	MaxTokens int `yaml:"max_tokens"`

	// IncludeScores appends each line's similarity for debugging prompts.
	IncludeScores bool `yaml:"include_scores"`
}

// DefaultConfig returns the default assembly parameters.
func DefaultConfig() Config {
	return Config{MaxTokens: DefaultMaxTokens, IncludeScores: true}
}

// Assemble renders results into a single bounded context string. Empty
// input yields NoContextSentinel.
func Assemble(results []models.RetrievalResult, cfg Config) string {
	if len(results) == 0 {
		return NoContextSentinel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	var sb strings.Builder
	sb.WriteString(header)
	for i := range results {
		sb.WriteByte('\n')
		sb.WriteString(formatLine(&results[i], cfg.IncludeScores))
	}

	return truncate(sb.String(), cfg.MaxTokens*charsPerToken)
}

// formatLine renders one result as
// "[{timestamp}] {sender}{ → recipient}: {content}{ [Summary: …]}{ (similarity: 0.00)}".
func formatLine(res *models.RetrievalResult, includeScore bool) string {
	var sb strings.Builder

	if !res.Timestamp.IsZero() {
		fmt.Fprintf(&sb, "[%s] ", res.Timestamp.Format("2006-01-02 15:04"))
	}

	sb.WriteString(res.Sender)
	if res.Recipient != "" {
		sb.WriteString(" → ")
		sb.WriteString(res.Recipient)
	}
	sb.WriteString(": ")
	sb.WriteString(res.Content)

	if res.Summary != "" {
		fmt.Fprintf(&sb, " [Summary: %s]", res.Summary)
	}
	if includeScore {
		fmt.Fprintf(&sb, " (similarity: %.2f)", res.Similarity)
	}

	return sb.String()
}

// truncate cuts s to at most budget characters, backing up to the nearest
// preceding sentence boundary, and appends the truncation marker.
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}

	cut := budget
	if boundary := lastSentenceBoundary(s[:cut]); boundary > 0 {
		cut = boundary
	} else {
		// No sentence boundary to back up to; at least never split a
		// multi-byte rune.
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}

	return strings.TrimRight(s[:cut], " \n") + "\n" + TruncationMarker
}

// lastSentenceBoundary returns the index just past the last sentence
// terminator in s, or 0 when there is none.
func lastSentenceBoundary(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return 0
}
