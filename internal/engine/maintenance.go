package engine

import (
	"context"
	"fmt"

	"github.com/minimee-ai/recall/internal/store"
)

// DeleteConversation removes an owner's conversation and every embedding
// record tied to it. Records have no standalone deletion path; they go
// away only with their messages or conversation.
func (e *Engine) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	if err := e.store.DeleteConversation(ctx, ownerID, conversationID); err != nil {
		e.countStoreError("delete")
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	e.logger.Info("deleted conversation", "owner_id", ownerID, "conversation_id", conversationID)
	return nil
}

// DeleteMessages removes messages by ID along with their records.
func (e *Engine) DeleteMessages(ctx context.Context, messageIDs []string) error {
	if err := e.store.DeleteMessages(ctx, messageIDs); err != nil {
		e.countStoreError("delete")
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	e.logger.Info("deleted messages", "count", len(messageIDs))
	return nil
}

// Stats returns store statistics.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}
