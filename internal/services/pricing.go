package services

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"naszgpt-backend/internal/models"
)

var perMillion = decimal.NewFromInt(1_000_000)

func mustPrice(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultModels is the built-in pricing table, in picker order.
func DefaultModels() []models.ModelInfo {
	return []models.ModelInfo{
		{
			ID:            "gpt-5-nano",
			Provider:      models.ProviderOpenAI,
			Description:   "Classification and summaries. Handles images and text, no audio.",
			InputPerMTok:  mustPrice("0.05"),
			OutputPerMTok: mustPrice("0.40"),
		},
		{
			ID:            "gpt-5-mini",
			Provider:      models.ProviderOpenAI,
			Description:   "Workflows and quick tasks. Handles images and text, no audio.",
			InputPerMTok:  mustPrice("0.25"),
			OutputPerMTok: mustPrice("2.00"),
		},
		{
			ID:            "gpt-5",
			Provider:      models.ProviderOpenAI,
			Description:   "Programming and complex tasks. Handles images and text, no audio.",
			InputPerMTok:  mustPrice("1.25"),
			OutputPerMTok: mustPrice("10.00"),
		},
		{
			ID:            "gpt-4o",
			Provider:      models.ProviderOpenAI,
			Description:   "General purpose multimodal model.",
			InputPerMTok:  mustPrice("2.50"),
			OutputPerMTok: mustPrice("10.00"),
		},
		{
			ID:            "gemini-2.5-flash",
			Provider:      models.ProviderGemini,
			Description:   "Fast Google model for everyday chat. Requires GEMINI_API_KEY.",
			InputPerMTok:  mustPrice("0.30"),
			OutputPerMTok: mustPrice("2.50"),
		},
	}
}

// Catalog is the set of selectable models with their prices. It can be
// replaced at runtime when the catalog file changes.
type Catalog struct {
	mu     sync.RWMutex
	models []models.ModelInfo
}

func NewCatalog(list []models.ModelInfo) *Catalog {
	c := &Catalog{}
	if len(list) == 0 {
		list = DefaultModels()
	}
	c.Replace(list)
	return c
}

// Replace swaps the whole table. Empty lists are ignored so a half-written
// catalog file never leaves the picker without models.
func (c *Catalog) Replace(list []models.ModelInfo) {
	if len(list) == 0 {
		return
	}
	cp := lo.UniqBy(list, func(m models.ModelInfo) string { return m.ID })

	c.mu.Lock()
	c.models = cp
	c.mu.Unlock()
}

func (c *Catalog) Models() []models.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ModelInfo(nil), c.models...)
}

func (c *Catalog) Get(id string) (models.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Find(c.models, func(m models.ModelInfo) bool { return m.ID == id })
}

// Default returns preferred when the catalog knows it, otherwise the first
// model in the table.
func (c *Catalog) Default(preferred string) string {
	if _, ok := c.Get(preferred); ok {
		return preferred
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return preferred
	}
	return c.models[0].ID
}

// Cost prices one call: prompt*input/1e6 + completion*output/1e6.
func (c *Catalog) Cost(model string, promptTokens, completionTokens int) (decimal.Decimal, error) {
	info, ok := c.Get(model)
	if !ok {
		return decimal.Zero, fmt.Errorf("no pricing for model %q", model)
	}
	return CallCost(info, promptTokens, completionTokens), nil
}

func CallCost(info models.ModelInfo, promptTokens, completionTokens int) decimal.Decimal {
	in := decimal.NewFromInt(int64(promptTokens)).Mul(info.InputPerMTok)
	out := decimal.NewFromInt(int64(completionTokens)).Mul(info.OutputPerMTok)
	return in.Add(out).Div(perMillion)
}

// Summarize totals the usage records of one conversation. rate may be nil,
// in which case the local cost is left null.
func Summarize(usage []models.UsageRecord, rate *models.ExchangeRate, currency string) models.CostSummary {
	s := models.CostSummary{
		Calls:    len(usage),
		CostUSD:  decimal.Zero,
		Currency: currency,
	}
	for _, u := range usage {
		s.PromptTokens += u.PromptTokens
		s.CompletionTokens += u.CompletionTokens
		s.TotalTokens += u.TotalTokens
		s.ResponseTimeMs += u.ResponseTimeMs
		s.CostUSD = s.CostUSD.Add(u.CostUSD)
	}
	if rate != nil {
		s.RateAvailable = true
		s.RateOverridden = rate.Overridden
		s.RateEffectiveDate = rate.EffectiveDate
		s.ExchangeRate = decimal.NewNullDecimal(rate.Rate)
		s.CostLocal = decimal.NewNullDecimal(s.CostUSD.Mul(rate.Rate))
	}
	return s
}
