package session

import (
	"context"
	"sync"
	"time"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/cache"
)

type memSession struct {
	mu     sync.Mutex
	values map[string]string
}

// Memory keeps sessions in process. A session expires after ttl without
// a write.
type Memory struct {
	ttl      time.Duration
	sessions *cache.Cache[*memSession]
}

// NewMemory creates an in-memory backend.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, sessions: cache.New[*memSession]()}
}

func (m *Memory) Get(_ context.Context, sessionID, key string) (string, error) {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return "", awardwizard.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", awardwizard.ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, sessionID, key, value string) error {
	s := m.sessions.GetOrSet(sessionID, m.ttl, func() *memSession {
		return &memSession{values: make(map[string]string)}
	})
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, sessionID string, keys ...string) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.values, k)
	}
	s.mu.Unlock()
	return nil
}

func (m *Memory) Drop(_ context.Context, sessionID string) error {
	m.sessions.Invalidate(sessionID)
	return nil
}

// Sweep drops expired sessions. Expiry is fixed by the ttl given to
// NewMemory, so idle is ignored.
func (m *Memory) Sweep(_ context.Context, _ time.Duration) (int, error) {
	before := m.sessions.Len()
	m.sessions.Cleanup()
	return before - m.sessions.Len(), nil
}

func (m *Memory) Close() error {
	m.sessions.Stop()
	return nil
}
