package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"naszgpt-backend/internal/models"
)

type catalogEntry struct {
	ID            string `mapstructure:"id"`
	Provider      string `mapstructure:"provider"`
	Description   string `mapstructure:"description"`
	InputPerMTok  string `mapstructure:"input_per_mtok"`
	OutputPerMTok string `mapstructure:"output_per_mtok"`
}

// CatalogFile reads a model catalog (YAML, JSON or TOML, by extension) of
// the form:
//
//	models:
//	  - id: gpt-5-mini
//	    provider: openai
//	    description: Workflows and quick tasks
//	    input_per_mtok: 0.25
//	    output_per_mtok: 2.00
type CatalogFile struct {
	v *viper.Viper
}

func OpenCatalogFile(path string) (*CatalogFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read model catalog %s: %w", path, err)
	}
	return &CatalogFile{v: v}, nil
}

func (f *CatalogFile) Models() ([]models.ModelInfo, error) {
	var entries []catalogEntry
	if err := f.v.UnmarshalKey("models", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode model catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("model catalog %s lists no models", f.v.ConfigFileUsed())
	}

	out := make([]models.ModelInfo, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("model catalog entry without id")
		}
		in, err := decimal.NewFromString(e.InputPerMTok)
		if err != nil {
			return nil, fmt.Errorf("model %s: invalid input_per_mtok %q: %w", id, e.InputPerMTok, err)
		}
		outPrice, err := decimal.NewFromString(e.OutputPerMTok)
		if err != nil {
			return nil, fmt.Errorf("model %s: invalid output_per_mtok %q: %w", id, e.OutputPerMTok, err)
		}
		provider := strings.ToLower(strings.TrimSpace(e.Provider))
		if provider == "" {
			provider = models.ProviderOpenAI
		}
		out = append(out, models.ModelInfo{
			ID:            id,
			Provider:      provider,
			Description:   e.Description,
			InputPerMTok:  in,
			OutputPerMTok: outPrice,
		})
	}
	return out, nil
}

// Watch calls onChange with the re-read catalog whenever the file changes.
// A file that fails to parse is logged and ignored.
func (f *CatalogFile) Watch(onChange func([]models.ModelInfo)) {
	f.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		list, err := f.Models()
		if err != nil {
			slog.Warn("model catalog reload failed", "file", e.Name, "error", err)
			return
		}
		slog.Info("model catalog reloaded", "file", e.Name, "models", len(list))
		onChange(list)
	})
	f.v.WatchConfig()
}
