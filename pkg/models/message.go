// Package models defines the core data types shared across the recall engine.
package models

import (
	"time"
)

// Source identifies the platform a message originated from.
type Source string

const (
	SourceWhatsApp  Source = "whatsapp"
	SourceGmail     Source = "gmail"
	SourceDashboard Source = "dashboard"
	SourceMinimee   Source = "minimee"
)

// Message is the unified message format across all ingestion sources.
// Messages are immutable once created; the ingestion pipeline owns them.
type Message struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient,omitempty"`
	Recipients     []string  `json:"recipients,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Source         Source    `json:"source"`
	ConversationID string    `json:"conversation_id"`
	OwnerID        string    `json:"owner_id"`
}

// RecipientList returns all recipients of the message. Recipient and
// Recipients are mutually exclusive on a well-formed message; this
// normalizes either form into a single slice.
func (m *Message) RecipientList() []string {
	if len(m.Recipients) > 0 {
		return m.Recipients
	}
	if m.Recipient != "" {
		return []string{m.Recipient}
	}
	return nil
}
