package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Comma-separated origins allowed to call the API cross-origin
	CORSOrigins string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Gemini (optional provider)
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Chat
	DefaultModel        string
	HistoryLimit        int
	MaxCompletionTokens int
	MaxUploadBytes      int64
	ModelCatalogFile    string
	ChatRatePerMinute   int

	// Langfuse
	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseHost      string

	// Exchange rate
	ExchangeRateURL string
	ExchangeRateTTL time.Duration
	LocalCurrency   string

	// Session. Idle sessions lose their pending attachment and rate override.
	SessionSecret      string
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration

	// Storage
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "text"),
		CORSOrigins:          getEnvOrDefault("CORS_ALLOWED_ORIGINS", ""),
		OpenAIAPIKey:         mustGetEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getEnvOrDefault("OPENAI_BASE_URL", ""),
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		DefaultModel:         getEnvOrDefault("DEFAULT_MODEL", "gpt-5-nano"),
		HistoryLimit:         getEnvAsIntOrDefault("CHAT_HISTORY_LIMIT", 20),
		MaxCompletionTokens:  getEnvAsIntOrDefault("CHAT_MAX_COMPLETION_TOKENS", 1000),
		MaxUploadBytes:       int64(getEnvAsIntOrDefault("MAX_UPLOAD_BYTES", 20<<20)),
		ModelCatalogFile:     getEnvOrDefault("MODEL_CATALOG_FILE", ""),
		ChatRatePerMinute:    getEnvAsIntOrDefault("CHAT_RATE_LIMIT", 30),
		LangfusePublicKey:    getEnvOrDefault("LANGFUSE_PUBLIC_KEY", ""),
		LangfuseSecretKey:    getEnvOrDefault("LANGFUSE_SECRET_KEY", ""),
		LangfuseHost:         getEnvOrDefault("LANGFUSE_HOST", ""),
		ExchangeRateURL:      getEnvOrDefault("EXCHANGE_RATE_URL", "https://api.nbp.pl/api/exchangerates/rates/A/USD/?format=json"),
		ExchangeRateTTL:      getEnvAsDurationOrDefault("EXCHANGE_RATE_TTL", time.Hour),
		LocalCurrency:        getEnvOrDefault("LOCAL_CURRENCY", "PLN"),
		SessionSecret:        getEnvOrDefault("SESSION_SECRET", ""),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 30*24*time.Hour),
		SessionIdleTimeout:   getEnvAsDurationOrDefault("SESSION_IDLE_TIMEOUT", 2*time.Hour),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		SQLitePath:           getEnvOrDefault("SQLITE_PATH", ""),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
	}

	return cfg
}

// MissingLangfuseKeys lists the Langfuse variables that are not set. Tracing
// is disabled unless all of them are present.
func (c *Config) MissingLangfuseKeys() []string {
	var missing []string
	if c.LangfusePublicKey == "" {
		missing = append(missing, "LANGFUSE_PUBLIC_KEY")
	}
	if c.LangfuseSecretKey == "" {
		missing = append(missing, "LANGFUSE_SECRET_KEY")
	}
	if c.LangfuseHost == "" {
		missing = append(missing, "LANGFUSE_HOST")
	}
	return missing
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) LangfuseEnabled() bool {
	return len(c.MissingLangfuseKeys()) == 0
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ignoring non-numeric environment variable", "key", key, "value", val)
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration environment variable", "key", key, "value", val)
		return defaultVal
	}
	return d
}
