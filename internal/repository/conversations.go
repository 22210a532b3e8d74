package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ConversationRepository stores which tenants take part in a conversation.
type ConversationRepository struct {
	db DBTX
}

// NewConversationRepository creates a repository on db.
func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Join records the tenant as a participant. Joining twice is a no-op.
func (r *ConversationRepository) Join(ctx context.Context, conversationID, tenantID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO conversation_participants (conversation_id, tenant_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, tenant_id) DO NOTHING`, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("join conversation %s: %w", conversationID, err)
	}
	return nil
}

// Participants returns the tenant IDs in the conversation, sorted.
func (r *ConversationRepository) Participants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tenant_id FROM conversation_participants
		WHERE conversation_id = $1 ORDER BY tenant_id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("participants of %s: %w", conversationID, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
