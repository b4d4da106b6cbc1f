package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestFromContext_NoValues(t *testing.T) {
	Init("info", "json")
	assert.Same(t, Default(), FromContext(context.Background()))
}

func TestFromContext_WithValues(t *testing.T) {
	Init("info", "text")
	ctx := WithValue(context.Background(), SessionIDKey, "abc")
	assert.NotSame(t, Default(), FromContext(ctx))
}
