package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naszgpt-backend/internal/database"
	"naszgpt-backend/internal/models"
	"naszgpt-backend/internal/repository"
)

func newSQLiteChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.InitSQLiteTables(db))
	return newChatFixtureWithStore(t, repository.NewSQLiteStore(db))
}

func TestSQLiteChat_DocumentStaysInContext(t *testing.T) {
	f := newSQLiteChatFixture(t)
	ctx := context.Background()

	_, err := f.svc.AttachFile(ctx, "s1", "notes.txt", []byte("SECRET DOC BODY"))
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, "s1", models.ChatRequest{Message: "What is in the file?"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, "s1", models.ChatRequest{Message: "Say it again"})
	require.NoError(t, err)

	require.Len(t, f.llm.calls, 2)
	assert.Contains(t, f.llm.calls[0].Messages[0].Content, "SECRET DOC BODY")
	assert.Contains(t, f.llm.calls[1].Messages[0].Content, "SECRET DOC BODY")

	conv := f.active(t, "s1")
	require.Len(t, conv.Messages, 4)
	require.NotNil(t, conv.Messages[0].Attachment)
	assert.Equal(t, "SECRET DOC BODY", conv.Messages[0].Attachment.Text)
	assert.Len(t, conv.Usage, 2)
}

func TestSQLiteChat_FailedSendAppendsNothing(t *testing.T) {
	f := newSQLiteChatFixture(t)
	ctx := context.Background()

	f.llm.err = assert.AnError
	_, err := f.svc.SendMessage(ctx, "s1", models.ChatRequest{Message: "Hello"})
	require.Error(t, err)

	conv := f.active(t, "s1")
	assert.Empty(t, conv.Messages)
	assert.Empty(t, conv.Usage)
}
