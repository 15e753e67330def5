package allowance

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrAuthorizationNotFound is returned for unknown (user, address) pairs.
var ErrAuthorizationNotFound = errors.New("authorization not found")

// Store is the persistence abstraction for authorization records, keyed by
// (user, wallet address).
type Store interface {
	// Get returns the authorization, or ErrAuthorizationNotFound.
	Get(ctx context.Context, userID, address string) (*Authorization, error)

	// Put inserts or replaces the authorization.
	Put(ctx context.Context, auth *Authorization) error

	// Delete removes the record and reports whether one existed.
	Delete(ctx context.Context, userID, address string) (bool, error)
}

func storeKey(userID, address string) string {
	return userID + ":" + strings.ToLower(address)
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Authorization
}

// NewMemoryStore creates an empty in-memory authorization store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Authorization)}
}

func (s *MemoryStore) Get(ctx context.Context, userID, address string) (*Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[storeKey(userID, address)]
	if !ok {
		return nil, ErrAuthorizationNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Put(ctx context.Context, auth *Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[storeKey(auth.UserID, auth.WalletAddress)] = *auth
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(userID, address)
	_, ok := s.records[key]
	delete(s.records, key)
	return ok, nil
}
