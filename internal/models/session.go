package models

// SessionView is everything the UI needs to render one screen.
type SessionView struct {
	SessionID         string                `json:"session_id"`
	Conversation      ConversationView      `json:"conversation"`
	Conversations     []ConversationSummary `json:"conversations"`
	PendingAttachment *AttachmentView       `json:"pending_attachment"`
	ExchangeRate      *ExchangeRate         `json:"exchange_rate"`
	Models            []ModelInfo           `json:"models"`
	DefaultModel      string                `json:"default_model"`
}
