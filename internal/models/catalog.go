package models

import "github.com/shopspring/decimal"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ModelInfo describes a selectable model and its price in USD per one
// million tokens.
type ModelInfo struct {
	ID            string          `json:"id" mapstructure:"id"`
	Provider      string          `json:"provider" mapstructure:"provider"`
	Description   string          `json:"description" mapstructure:"description"`
	InputPerMTok  decimal.Decimal `json:"input_per_mtok" mapstructure:"-"`
	OutputPerMTok decimal.Decimal `json:"output_per_mtok" mapstructure:"-"`
	Available     bool            `json:"available" mapstructure:"-"`
}
