package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"naszgpt-backend/internal/models"
)

// MemoryStore keeps conversations in process memory. It is the default when
// no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*models.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[uuid.UUID]*models.Conversation)}
}

func (s *MemoryStore) Create(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListBySession(_ context.Context, sessionID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	list := make([]models.ConversationSummary, 0)
	for _, c := range s.convs {
		if c.SessionID == sessionID {
			list = append(list, c.Summary())
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(list, func(a, b models.ConversationSummary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Update(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.convs[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = c.Name
	cur.Personality = c.Personality
	cur.Model = c.Model
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendExchange(_ context.Context, id uuid.UUID, msgs []models.Message, usage models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	cp := (&models.Conversation{Messages: msgs}).Clone()
	cur.Append(cp.Messages...)
	cur.RecordUsage(usage)
	return nil
}

func (s *MemoryStore) ClearMessages(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	cur.Clear()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return ErrNotFound
	}
	delete(s.convs, id)
	return nil
}

func (s *MemoryStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.convs {
		if c.SessionID == sessionID {
			delete(s.convs, id)
		}
	}
	return nil
}
