package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"naszgpt-backend/internal/models"
)

// ConversationRepo is the Postgres ConversationStore.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

func (r *ConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	query := `INSERT INTO conversations (id, session_id, name, personality, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.SessionID, c.Name, c.Personality, c.Model, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ConversationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, name, personality, model, created_at, updated_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.SessionID, &c.Name, &c.Personality, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if c.Messages, err = r.messages(ctx, id); err != nil {
		return nil, err
	}
	if c.Usage, err = r.usage(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) messages(ctx context.Context, convID uuid.UUID) ([]models.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, role, content, attachment_json, truncated, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY seq ASC`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			m          models.Message
			role       string
			attachment []byte
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &attachment, &m.Truncated, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		if len(attachment) > 0 {
			if m.Attachment, err = decodeAttachment(attachment); err != nil {
				return nil, fmt.Errorf("failed to decode attachment of message %s: %w", m.ID, err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *ConversationRepo) usage(ctx context.Context, convID uuid.UUID) ([]models.UsageRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, message_id, model, prompt_tokens, completion_tokens, total_tokens,
			response_time_ms, cost_usd, cost_local, currency, exchange_rate, created_at
		FROM usage_records WHERE conversation_id = $1 ORDER BY created_at ASC`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.UsageRecord{}
	for rows.Next() {
		var u models.UsageRecord
		if err := rows.Scan(
			&u.ID, &u.MessageID, &u.Model, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens,
			&u.ResponseTimeMs, &u.CostUSD, &u.CostLocal, &u.Currency, &u.ExchangeRate, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, u)
	}
	return records, rows.Err()
}

func (r *ConversationRepo) ListBySession(ctx context.Context, sessionID string) ([]models.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.model, COUNT(m.id), c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.session_id = $1
		GROUP BY c.id
		ORDER BY c.created_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.ConversationSummary{}
	for rows.Next() {
		var s models.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Model, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *ConversationRepo) Update(ctx context.Context, c *models.Conversation) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET name = $2, personality = $3, model = $4, updated_at = NOW()
		WHERE id = $1`, c.ID, c.Name, c.Personality, c.Model)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) AppendExchange(ctx context.Context, id uuid.UUID, msgs []models.Message, usage models.UsageRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock keeps seq allocation consistent with concurrent appends.
	tag, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	var seq int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1`, id,
	).Scan(&seq); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, m := range msgs {
		seq++
		attachment, err := encodeAttachment(m.Attachment)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO messages (id, conversation_id, seq, role, content, attachment_json, truncated, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, id, seq, string(m.Role), m.Content, attachment, m.Truncated, m.CreatedAt)
	}
	batch.Queue(`INSERT INTO usage_records (id, conversation_id, message_id, model, prompt_tokens, completion_tokens,
			total_tokens, response_time_ms, cost_usd, cost_local, currency, exchange_rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		usage.ID, id, usage.MessageID, usage.Model, usage.PromptTokens, usage.CompletionTokens,
		usage.TotalTokens, usage.ResponseTimeMs, usage.CostUSD, usage.CostLocal, usage.Currency,
		usage.ExchangeRate, usage.CreatedAt)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append exchange: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *ConversationRepo) ClearMessages(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM usage_records WHERE conversation_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ConversationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE session_id = $1`, sessionID)
	return err
}
