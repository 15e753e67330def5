package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when a session key has never been seen.
var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence abstraction for session records. Components
// depend on this interface, never on a concrete container.
type Store interface {
	// Get returns the session for key, or ErrSessionNotFound.
	Get(ctx context.Context, key string) (*Session, error)

	// Put inserts or replaces the session.
	Put(ctx context.Context, session *Session) error

	// List returns all sessions.
	List(ctx context.Context) ([]*Session, error)
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns a copy of the stored session.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := sess
	return &out, nil
}

// Put stores a copy of the session.
func (s *MemoryStore) Put(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Key] = *session
	return nil
}

// List returns copies of all stored sessions.
func (s *MemoryStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := sess
		out = append(out, &cp)
	}
	return out, nil
}
