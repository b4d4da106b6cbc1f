package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
)

// sessionState is the in-memory part of a browser session. All access goes
// through the registry lock of that session.
type sessionState struct {
	mu           sync.Mutex
	active       uuid.UUID
	pending      *models.Attachment
	rateOverride *decimal.Decimal
	lastSeen     time.Time
	// removed is set once the registry dropped this state; holders of a
	// stale pointer must look the session up again.
	removed bool
}

// SessionRegistry hands out per-session state and serialises work within one
// session.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	now      func() time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// acquire returns the locked state of sessionID, creating it on first use.
// The caller must call release.
func (r *SessionRegistry) acquire(sessionID string) *sessionState {
	for {
		r.mu.Lock()
		st, ok := r.sessions[sessionID]
		if !ok {
			st = &sessionState{}
			r.sessions[sessionID] = st
			metrics.ActiveSessions.Set(float64(len(r.sessions)))
		}
		r.mu.Unlock()

		st.mu.Lock()
		if st.removed {
			// Swept or ended while we waited for the lock.
			st.mu.Unlock()
			continue
		}
		st.lastSeen = r.now()
		return st
	}
}

func (r *SessionRegistry) release(st *sessionState) {
	st.mu.Unlock()
}

// forget drops the state of sessionID. The caller must hold st.
func (r *SessionRegistry) forget(sessionID string, st *sessionState) {
	r.mu.Lock()
	st.removed = true
	if r.sessions[sessionID] == st {
		delete(r.sessions, sessionID)
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops state not touched for idle. Sessions busy with a request are
// skipped.
func (r *SessionRegistry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, st := range r.sessions {
		if !st.mu.TryLock() {
			continue
		}
		if st.lastSeen.Before(cutoff) {
			st.removed = true
			delete(r.sessions, id)
			removed++
		}
		st.mu.Unlock()
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return removed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (r *SessionRegistry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				slog.Info("swept idle sessions", "count", n)
			}
		}
	}
}
