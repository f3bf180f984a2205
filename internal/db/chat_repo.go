package db

import (
	"context"

	"chatforge/internal/types"
)

// ChatMessageRepository provides access to the append-only chat_messages log.
type ChatMessageRepository struct {
	db DBTX
}

// NewChatMessageRepository creates a new ChatMessageRepository backed by the
// given database connection (pool or transaction).
func NewChatMessageRepository(db DBTX) *ChatMessageRepository {
	return &ChatMessageRepository{db: db}
}

// Insert logs one completed chat turn.
func (r *ChatMessageRepository) Insert(ctx context.Context, m types.ChatMessage) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_messages (user_id, message, response, tokens_used, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		m.UserID,
		m.Message,
		m.Response,
		m.TokensUsed,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to log chat message", err)
	}
	return nil
}

// Count returns the total number of logged chat turns.
func (r *ChatMessageRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count chat messages", err)
	}
	return n, nil
}
