package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Attachment is the plain text extracted from an uploaded document.
type Attachment struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Text      string `json:"-"`
	Chars     int    `json:"chars"`
}

// Preview returns the first n runes of the attachment text.
func (a *Attachment) Preview(n int) string {
	r := []rune(a.Text)
	if len(r) <= n {
		return a.Text
	}
	return string(r[:n]) + "..."
}

// Message is a single conversation entry. Messages are never mutated after
// they are appended to a Conversation.
type Message struct {
	ID         uuid.UUID   `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Truncated  bool        `json:"truncated,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant reply and the usage it produced.
type ChatResponse struct {
	UserMessage MessageView `json:"user_message"`
	Reply       MessageView `json:"reply"`
	Usage       UsageRecord `json:"usage"`
	Summary     CostSummary `json:"summary"`
}

// MessageView is a Message as rendered for the UI.
type MessageView struct {
	Message
	ContentHTML string       `json:"content_html,omitempty"`
	Usage       *UsageRecord `json:"usage,omitempty"`
}

type AttachmentView struct {
	Attachment
	Preview string `json:"preview"`
}
