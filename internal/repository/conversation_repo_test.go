package repository

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"naszgpt-backend/internal/database"
)

func TestConversationRepo_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := database.NewPostgresPool(url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.RunMigrations(pool))

	storeSuite(t, func(t *testing.T) ConversationStore {
		_, err := pool.Exec(context.Background(), "TRUNCATE conversations CASCADE")
		require.NoError(t, err)
		return NewConversationRepo(pool)
	})
}
