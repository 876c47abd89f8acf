package auth

import (
	"context"
	"sync"
)

// MemorySessionStore keeps refresh sessions in process memory. It backs
// RAIBEE_STORE=memory and the tests; sessions are lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore returns an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

// Save stores session under its refresh token, replacing any previous entry.
func (s *MemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.RefreshToken] = session
	return nil
}

// Find returns the session for refreshToken or ErrSessionNotFound. Expiry is
// checked by the Manager, not here.
func (s *MemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[refreshToken]; ok {
		return session, nil
	}
	return Session{}, ErrSessionNotFound
}

// Rotate replaces oldToken with next. Two concurrent rotations of the same
// token cannot both succeed.
func (s *MemorySessionStore) Rotate(_ context.Context, oldToken string, next Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[oldToken]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, oldToken)
	s.sessions[next.RefreshToken] = next
	return nil
}

// Delete revokes refreshToken. Unknown tokens are ignored.
func (s *MemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, refreshToken)
	return nil
}

// Has reports whether refreshToken is currently live.
func (s *MemorySessionStore) Has(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[refreshToken]
	return ok
}

var _ SessionStore = (*MemorySessionStore)(nil)
