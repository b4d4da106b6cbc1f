package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageRecord is written once per completed completion call.
type UsageRecord struct {
	ID               uuid.UUID           `json:"id"`
	MessageID        uuid.UUID           `json:"message_id"`
	Model            string              `json:"model"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	TotalTokens      int                 `json:"total_tokens"`
	ResponseTimeMs   int64               `json:"response_time_ms"`
	CostUSD          decimal.Decimal     `json:"cost_usd"`
	CostLocal        decimal.NullDecimal `json:"cost_local"`
	Currency         string              `json:"currency"`
	ExchangeRate     decimal.NullDecimal `json:"exchange_rate"`
	CreatedAt        time.Time           `json:"created_at"`
}

func (u UsageRecord) ResponseTime() time.Duration {
	return time.Duration(u.ResponseTimeMs) * time.Millisecond
}

// CostSummary aggregates the usage of one conversation.
type CostSummary struct {
	Calls             int                 `json:"calls"`
	PromptTokens      int                 `json:"prompt_tokens"`
	CompletionTokens  int                 `json:"completion_tokens"`
	TotalTokens       int                 `json:"total_tokens"`
	ResponseTimeMs    int64               `json:"response_time_ms"`
	CostUSD           decimal.Decimal     `json:"cost_usd"`
	CostLocal         decimal.NullDecimal `json:"cost_local"`
	Currency          string              `json:"currency"`
	ExchangeRate      decimal.NullDecimal `json:"exchange_rate"`
	RateAvailable     bool                `json:"rate_available"`
	RateEffectiveDate string              `json:"rate_effective_date,omitempty"`
	RateOverridden    bool                `json:"rate_overridden"`
}

// ExchangeRate is a USD to local-currency rate.
type ExchangeRate struct {
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate string          `json:"effective_date,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
	Overridden    bool            `json:"overridden"`
}

type ExchangeRateOverrideRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// UsageReport is the usage history of one conversation with its totals.
type UsageReport struct {
	ConversationID uuid.UUID     `json:"conversation_id"`
	Records        []UsageRecord `json:"records"`
	Summary        CostSummary   `json:"summary"`
}
