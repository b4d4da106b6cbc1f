package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"naszgpt-backend/internal/middleware"
	"naszgpt-backend/internal/models"
)

// chatService is the part of services.ChatService the HTTP layer drives.
type chatService interface {
	Models() []models.ModelInfo
	Session(ctx context.Context, sessionID string) (*models.SessionView, error)
	EndSession(ctx context.Context, sessionID string) error
	SetRateOverride(ctx context.Context, sessionID string, rate decimal.Decimal) (*models.ExchangeRate, error)
	ClearRateOverride(ctx context.Context, sessionID string) *models.ExchangeRate

	SendMessage(ctx context.Context, sessionID string, req models.ChatRequest) (*models.ChatResponse, error)
	AttachFile(ctx context.Context, sessionID, filename string, data []byte) (*models.AttachmentView, error)
	ClearAttachment(ctx context.Context, sessionID string)

	ListConversations(ctx context.Context, sessionID string) ([]models.ConversationSummary, error)
	CreateConversation(ctx context.Context, sessionID string, req models.CreateConversationRequest) (*models.ConversationView, error)
	GetConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error)
	ActivateConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error)
	UpdateConversation(ctx context.Context, sessionID string, id uuid.UUID, req models.UpdateConversationRequest) (*models.ConversationView, error)
	ClearConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error)
	DeleteConversation(ctx context.Context, sessionID string, id uuid.UUID) (*models.ConversationView, error)
	ConversationUsage(ctx context.Context, sessionID string, id uuid.UUID) (*models.UsageReport, error)
}

type cookieClearer interface {
	ClearCookie(w http.ResponseWriter)
}

type ChatHandler struct {
	chat           chatService
	sessions       cookieClearer
	maxUploadBytes int64
}

func NewChatHandler(chat chatService, sessions cookieClearer, maxUploadBytes int64) *ChatHandler {
	return &ChatHandler{
		chat:           chat,
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
	}
}

func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid conversation ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func sessionID(r *http.Request) string {
	return middleware.GetSessionID(r.Context())
}
