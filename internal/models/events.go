package models

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

const (
	EventMessageAppended     = "message_appended"
	EventConversationChanged = "conversation_changed"
	EventAttachmentChanged   = "attachment_changed"
	EventRateChanged         = "rate_changed"
	EventSessionEnded        = "session_ended"
)

type SessionUpdate struct {
	SessionID      string     `json:"session_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	At             time.Time  `json:"at"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
