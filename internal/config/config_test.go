package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal time.Duration
		expected   time.Duration
	}{
		{"parses duration", "TEST_DUR_1", "90m", time.Hour, 90 * time.Minute},
		{"uses default for empty", "TEST_DUR_2", "", time.Hour, time.Hour},
		{"uses default for garbage", "TEST_DUR_3", "soon", time.Hour, time.Hour},
		{"uses default for negative", "TEST_DUR_4", "-5s", time.Hour, time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsDurationOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestLoad_PanicsWithoutOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when OPENAI_API_KEY is missing")
		}
	}()

	Load()
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("DEFAULT_MODEL", "")
	t.Setenv("CHAT_HISTORY_LIMIT", "")

	cfg := Load()

	if cfg.OpenAIAPIKey != "sk-test" {
		t.Errorf("Expected OpenAI key to be loaded, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.DefaultModel != "gpt-5-nano" {
		t.Errorf("Expected default model gpt-5-nano, got %q", cfg.DefaultModel)
	}
	if cfg.HistoryLimit != 20 {
		t.Errorf("Expected history limit 20, got %d", cfg.HistoryLimit)
	}
	if cfg.LangfuseEnabled() {
		t.Error("Expected Langfuse to be disabled without keys")
	}
	if got := len(cfg.MissingLangfuseKeys()); got != 3 {
		t.Errorf("Expected 3 missing Langfuse keys, got %d", got)
	}
}

func TestMissingLangfuseKeys_Partial(t *testing.T) {
	cfg := &Config{LangfusePublicKey: "pk", LangfuseHost: "https://cloud.langfuse.com"}

	missing := cfg.MissingLangfuseKeys()
	if len(missing) != 1 || missing[0] != "LANGFUSE_SECRET_KEY" {
		t.Errorf("Expected only LANGFUSE_SECRET_KEY missing, got %v", missing)
	}
}

func TestLoad_SessionAndOrigins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_IDLE_TIMEOUT", "45m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	t.Setenv("GEMINI_CONCURRENT_REQUESTS", "nope")

	cfg := Load()

	if !cfg.IsProduction() {
		t.Error("Expected production environment")
	}
	if cfg.SessionIdleTimeout != 45*time.Minute {
		t.Errorf("Expected 45m idle timeout, got %v", cfg.SessionIdleTimeout)
	}
	if cfg.CORSOrigins != "http://localhost:5173" {
		t.Errorf("Unexpected CORS origins %q", cfg.CORSOrigins)
	}
	if cfg.GeminiConcurrentReqs != 5 {
		t.Errorf("Expected fallback of 5 concurrent Gemini requests, got %d", cfg.GeminiConcurrentReqs)
	}
}
