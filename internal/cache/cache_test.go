package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "rate", []byte("3.6"), time.Minute))

	got, err := m.Get(ctx, "rate")
	require.NoError(t, err)
	assert.Equal(t, []byte("3.6"), got)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "rate")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemory_NoTTLAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Hour))

	_, err := m.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "a", "b"))
	_, err = m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemory_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	src := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", src, 0))
	src[0] = 'x'

	got, _ := m.Get(ctx, "k")
	got[1] = 'y'
	again, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}
