package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"naszgpt-backend/internal/models"
)

var ErrNotFound = errors.New("conversation not found")

// ConversationStore persists conversations and their append-only history.
// Implementations return deep copies; callers never share state with the
// store.
type ConversationStore interface {
	Create(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	// ListBySession returns the session's conversations, newest first.
	ListBySession(ctx context.Context, sessionID string) ([]models.ConversationSummary, error)
	// Update saves name, personality and model.
	Update(ctx context.Context, c *models.Conversation) error
	// AppendExchange stores the messages and the usage record of one
	// completed call together, or nothing at all.
	AppendExchange(ctx context.Context, id uuid.UUID, msgs []models.Message, usage models.UsageRecord) error
	ClearMessages(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteBySession(ctx context.Context, sessionID string) error
}
