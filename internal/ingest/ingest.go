// Package ingest parses exported conversation history into messages. Two
// formats are supported: WhatsApp chat exports (the text files the app
// produces under "Export chat") and Gmail mbox archives (Google Takeout).
package ingest

import (
	"io"

	"github.com/minimee-ai/recall/pkg/models"
)

// Parser extracts messages from an exported history file.
type Parser interface {
	// Parse reads an export and returns messages ordered as they appear.
	Parse(r io.Reader, opts ParseOptions) ([]models.Message, error)

	// Name returns the parser name for logging and debugging.
	Name() string
}

// ParseOptions carries the fields an export file cannot know about itself.
type ParseOptions struct {
	// OwnerID is the account the messages belong to. Required.
	OwnerID string

	// ConversationID identifies the conversation. When empty, parsers
	// derive one (WhatsApp: from participants; Gmail: from the thread).
	ConversationID string
}
