package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySession struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time
	updatedAt time.Time
	turns     []Turn
	deleted   bool
}

// MemoryStore keeps sessions in process memory. Appends to one session
// serialize on a per-session mutex so sequence numbers never collide.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	logger   *slog.Logger
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	ms := &memorySession{
		id:        uuid.NewString(),
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	s.sessions[ms.id] = ms
	s.mu.Unlock()

	s.logger.Debug("session created", slog.String("session_id", ms.id))
	return &Session{ID: ms.id, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *MemoryStore) get(id string) (*memorySession, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	s.mu.RLock()
	ms, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	ms, err := s.get(id)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return &Session{
		ID:        ms.id,
		CreatedAt: ms.createdAt,
		UpdatedAt: ms.updatedAt,
		TurnCount: len(ms.turns),
	}, nil
}

func (s *MemoryStore) Append(ctx context.Context, id string, turn Turn) (*Turn, error) {
	ms, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	// a concurrent Delete or Sweep may have removed the session after
	// the map lookup; it marks the session under ms.mu, so checking the
	// flag here needs no store lock (store lock is always taken before
	// a session lock, never the other way around)
	if ms.deleted {
		return nil, ErrSessionNotFound
	}

	turn.Seq = len(ms.turns) + 1
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}
	ms.turns = append(ms.turns, turn)
	ms.updatedAt = s.now()
	return &turn, nil
}

func (s *MemoryStore) History(ctx context.Context, id string, limit int) ([]Turn, error) {
	ms, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	turns := ms.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	ms.mu.Lock()
	ms.deleted = true
	ms.mu.Unlock()
	delete(s.sessions, id)
	s.logger.Debug("session deleted", slog.String("session_id", id))
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, ms := range s.sessions {
		ms.mu.Lock()
		out = append(out, Session{
			ID:        ms.id,
			CreatedAt: ms.createdAt,
			UpdatedAt: ms.updatedAt,
			TurnCount: len(ms.turns),
		})
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ms := range s.sessions {
		ms.mu.Lock()
		stale := ms.updatedAt.Before(cutoff)
		if stale {
			ms.deleted = true
		}
		ms.mu.Unlock()
		if stale {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("sessions swept", slog.Int("removed", removed))
	}
	return removed, nil
}
