package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"naszgpt-backend/internal/models"
)

// conversationRow and friends are the gorm entities of the SQLite store.
// Decimals are stored as text to keep them exact.
type conversationRow struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"index"`
	Name        string
	Personality string
	Model       string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index:idx_messages_conv_seq,priority:1"`
	Seq            int64  `gorm:"index:idx_messages_conv_seq,priority:2"`
	Role           string
	Content        string
	AttachmentJSON *string
	Truncated      bool
	CreatedAt      time.Time
}

func (messageRow) TableName() string { return "messages" }

type usageRow struct {
	ID               string `gorm:"primaryKey"`
	ConversationID   string `gorm:"index"`
	MessageID        string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ResponseTimeMs   int64
	CostUSD          string
	CostLocal        *string
	Currency         string
	ExchangeRate     *string
	CreatedAt        time.Time
}

func (usageRow) TableName() string { return "usage_records" }

// InitSQLiteTables creates or migrates the SQLite schema.
func InitSQLiteTables(db *gorm.DB) error {
	return db.AutoMigrate(&conversationRow{}, &messageRow{}, &usageRow{})
}

// SQLiteStore is the ConversationStore used with SQLITE_PATH.
type SQLiteStore struct {
	db *gorm.DB
}

func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Create(ctx context.Context, c *models.Conversation) error {
	row := conversationRow{
		ID:          c.ID.String(),
		SessionID:   c.SessionID,
		Name:        c.Name,
		Personality: c.Personality,
		Model:       c.Model,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	db := s.db.WithContext(ctx)

	var row conversationRow
	err := db.Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var msgRows []messageRow
	if err := db.Where("conversation_id = ?", row.ID).Order("seq ASC").Find(&msgRows).Error; err != nil {
		return nil, err
	}
	var usageRows []usageRow
	if err := db.Where("conversation_id = ?", row.ID).Order("created_at ASC").Find(&usageRows).Error; err != nil {
		return nil, err
	}

	c := &models.Conversation{
		ID:          id,
		SessionID:   row.SessionID,
		Name:        row.Name,
		Personality: row.Personality,
		Model:       row.Model,
		Messages:    make([]models.Message, 0, len(msgRows)),
		Usage:       make([]models.UsageRecord, 0, len(usageRows)),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	for _, mr := range msgRows {
		m, err := mr.toModel()
		if err != nil {
			return nil, err
		}
		c.Messages = append(c.Messages, m)
	}
	for _, ur := range usageRows {
		u, err := ur.toModel()
		if err != nil {
			return nil, err
		}
		c.Usage = append(c.Usage, u)
	}
	return c, nil
}

type conversationSummaryRow struct {
	ID           string
	Name         string
	Model        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string) ([]models.ConversationSummary, error) {
	var rows []conversationSummaryRow
	err := s.db.WithContext(ctx).
		Table("conversations").
		Select("id, name, model, created_at, updated_at, " +
			"(SELECT COUNT(*) FROM messages WHERE messages.conversation_id = conversations.id) AS message_count").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	list := make([]models.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid conversation id %q: %w", r.ID, err)
		}
		list = append(list, models.ConversationSummary{
			ID:           id,
			Name:         r.Name,
			Model:        r.Model,
			MessageCount: r.MessageCount,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return list, nil
}

func (s *SQLiteStore) Update(ctx context.Context, c *models.Conversation) error {
	res := s.db.WithContext(ctx).Model(&conversationRow{}).Where("id = ?", c.ID.String()).Updates(map[string]interface{}{
		"name":        c.Name,
		"personality": c.Personality,
		"model":       c.Model,
		"updated_at":  time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendExchange(ctx context.Context, id uuid.UUID, msgs []models.Message, usage models.UsageRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).Where("id = ?", id.String()).Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var seq int64
		if err := tx.Model(&messageRow{}).Where("conversation_id = ?", id.String()).
			Select("COALESCE(MAX(seq), 0)").Scan(&seq).Error; err != nil {
			return err
		}

		for _, m := range msgs {
			seq++
			row, err := newMessageRow(id, seq, m)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		ur := newUsageRow(id, usage)
		return tx.Create(&ur).Error
	})
}

func (s *SQLiteStore) ClearMessages(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversationRow{}).Where("id = ?", id.String()).Update("updated_at", time.Now().UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("conversation_id = ?", id.String()).Delete(&usageRow{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", id.String()).Delete(&messageRow{}).Error
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id.String()).Delete(&conversationRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return deleteChildren(tx, id.String())
	})
}

func (s *SQLiteStore) DeleteBySession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&conversationRow{}).Where("session_id = ?", sessionID).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", ids).Delete(&conversationRow{}).Error; err != nil {
			return err
		}
		return deleteChildren(tx, ids...)
	})
}

func deleteChildren(tx *gorm.DB, convIDs ...string) error {
	if err := tx.Where("conversation_id IN ?", convIDs).Delete(&usageRow{}).Error; err != nil {
		return err
	}
	return tx.Where("conversation_id IN ?", convIDs).Delete(&messageRow{}).Error
}

func newMessageRow(convID uuid.UUID, seq int64, m models.Message) (messageRow, error) {
	row := messageRow{
		ID:             m.ID.String(),
		ConversationID: convID.String(),
		Seq:            seq,
		Role:           string(m.Role),
		Content:        m.Content,
		Truncated:      m.Truncated,
		CreatedAt:      m.CreatedAt,
	}
	b, err := encodeAttachment(m.Attachment)
	if err != nil {
		return row, err
	}
	if b != nil {
		s := string(b)
		row.AttachmentJSON = &s
	}
	return row, nil
}

func (r messageRow) toModel() (models.Message, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return models.Message{}, fmt.Errorf("invalid message id %q: %w", r.ID, err)
	}
	m := models.Message{
		ID:        id,
		Role:      models.Role(r.Role),
		Content:   r.Content,
		Truncated: r.Truncated,
		CreatedAt: r.CreatedAt,
	}
	if r.AttachmentJSON != nil {
		if m.Attachment, err = decodeAttachment([]byte(*r.AttachmentJSON)); err != nil {
			return m, fmt.Errorf("failed to decode attachment of message %s: %w", r.ID, err)
		}
	}
	return m, nil
}

func nullDecimalString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func newUsageRow(convID uuid.UUID, u models.UsageRecord) usageRow {
	return usageRow{
		ID:               u.ID.String(),
		ConversationID:   convID.String(),
		MessageID:        u.MessageID.String(),
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		ResponseTimeMs:   u.ResponseTimeMs,
		CostUSD:          u.CostUSD.String(),
		CostLocal:        nullDecimalString(u.CostLocal),
		Currency:         u.Currency,
		ExchangeRate:     nullDecimalString(u.ExchangeRate),
		CreatedAt:        u.CreatedAt,
	}
}

func (r usageRow) toModel() (models.UsageRecord, error) {
	var (
		u   models.UsageRecord
		err error
	)
	if u.ID, err = uuid.Parse(r.ID); err != nil {
		return u, fmt.Errorf("invalid usage id %q: %w", r.ID, err)
	}
	if u.MessageID, err = uuid.Parse(r.MessageID); err != nil {
		return u, fmt.Errorf("invalid message id %q: %w", r.MessageID, err)
	}
	if u.CostUSD, err = decimal.NewFromString(r.CostUSD); err != nil {
		return u, fmt.Errorf("invalid cost %q: %w", r.CostUSD, err)
	}
	if u.CostLocal, err = parseNullDecimal(r.CostLocal); err != nil {
		return u, err
	}
	if u.ExchangeRate, err = parseNullDecimal(r.ExchangeRate); err != nil {
		return u, err
	}
	u.Model = r.Model
	u.PromptTokens = r.PromptTokens
	u.CompletionTokens = r.CompletionTokens
	u.TotalTokens = r.TotalTokens
	u.ResponseTimeMs = r.ResponseTimeMs
	u.Currency = r.Currency
	u.CreatedAt = r.CreatedAt
	return u, nil
}
