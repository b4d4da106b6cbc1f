package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the ordered message history of one chat plus the settings
// used to continue it. Messages and Usage are append-only.
type Conversation struct {
	ID          uuid.UUID     `json:"id"`
	SessionID   string        `json:"-"`
	Name        string        `json:"name"`
	Personality string        `json:"personality"`
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Usage       []UsageRecord `json:"usage"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func NewConversation(sessionID, name, personality, model string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Name:        name,
		Personality: personality,
		Model:       model,
		Messages:    []Message{},
		Usage:       []UsageRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

func (c *Conversation) RecordUsage(u UsageRecord) {
	c.Usage = append(c.Usage, u)
	c.UpdatedAt = time.Now().UTC()
}

func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Clear drops every message and usage record but keeps the settings.
func (c *Conversation) Clear() {
	c.Messages = []Message{}
	c.Usage = []UsageRecord{}
	c.UpdatedAt = time.Now().UTC()
}

func (c *Conversation) SelectModel(model string) {
	c.Model = model
	c.UpdatedAt = time.Now().UTC()
}

// Window returns the last n messages in order. n <= 0 returns all of them.
func (c *Conversation) Window(n int) []Message {
	if n <= 0 || n >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// LatestAttachment returns the attachment of the most recent message that
// carried one.
func (c *Conversation) LatestAttachment() *Attachment {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Attachment != nil {
			return c.Messages[i].Attachment
		}
	}
	return nil
}

// UsageFor returns the usage record produced together with the given
// assistant message.
func (c *Conversation) UsageFor(messageID uuid.UUID) *UsageRecord {
	for i := range c.Usage {
		if c.Usage[i].MessageID == messageID {
			return &c.Usage[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Attachment != nil {
			a := *m.Attachment
			m.Attachment = &a
		}
		cp.Messages[i] = m
	}
	cp.Usage = append([]UsageRecord{}, c.Usage...)
	return &cp
}

func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Name:         c.Name,
		Model:        c.Model,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CreateConversationRequest struct {
	Name string `json:"name"`
}

type UpdateConversationRequest struct {
	Name        *string `json:"name"`
	Personality *string `json:"personality"`
	Model       *string `json:"model"`
}

// ConversationView is a Conversation as rendered for the UI.
type ConversationView struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Personality string        `json:"personality"`
	Model       string        `json:"model"`
	Messages    []MessageView `json:"messages"`
	Summary     CostSummary   `json:"summary"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
