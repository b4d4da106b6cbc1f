package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_SweepDropsIdle(t *testing.T) {
	r := NewSessionRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	r.release(r.acquire("idle"))
	now = now.Add(time.Hour)
	r.release(r.acquire("fresh"))

	assert.Equal(t, 1, r.Sweep(30*time.Minute))
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_SweepSkipsBusySession(t *testing.T) {
	r := NewSessionRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	st := r.acquire("busy")
	now = now.Add(time.Hour)
	assert.Equal(t, 0, r.Sweep(time.Minute))
	r.release(st)
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_WaiterDoesNotKeepSweptState(t *testing.T) {
	r := NewSessionRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	stale := r.acquire("s1")

	got := make(chan *sessionState)
	go func() {
		st := r.acquire("s1")
		rate := decimal.NewFromInt(4)
		st.rateOverride = &rate
		r.release(st)
		got <- st
	}()
	time.Sleep(20 * time.Millisecond)

	// The session is dropped while the goroutine waits for its lock.
	r.forget("s1", stale)
	r.release(stale)

	var fresh *sessionState
	select {
	case fresh = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not return")
	}
	assert.NotSame(t, stale, fresh)

	// The override set by the waiter lives in the registered state.
	st := r.acquire("s1")
	defer r.release(st)
	assert.Same(t, fresh, st)
	require.NotNil(t, st.rateOverride)
	assert.True(t, st.rateOverride.Equal(decimal.NewFromInt(4)))
}

func TestSessionRegistry_AcquireAfterSweepStartsFresh(t *testing.T) {
	r := NewSessionRegistry()
	now := time.Now()
	r.now = func() time.Time { return now }

	st := r.acquire("s1")
	rate := decimal.NewFromInt(5)
	st.rateOverride = &rate
	r.release(st)

	now = now.Add(time.Hour)
	require.Equal(t, 1, r.Sweep(time.Minute))

	again := r.acquire("s1")
	defer r.release(again)
	assert.NotSame(t, st, again)
	assert.Nil(t, again.rateOverride)
}
