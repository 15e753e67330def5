package paywall

import (
	"context"
	"errors"
	"sync"
)

// ErrRequestNotFound is returned for unknown payment ids.
var ErrRequestNotFound = errors.New("payment request not found")

// Store is the persistence abstraction for payment requests.
type Store interface {
	// Get returns the request for id, or ErrRequestNotFound.
	Get(ctx context.Context, id string) (*PaymentRequest, error)

	// Put inserts or replaces the request.
	Put(ctx context.Context, req *PaymentRequest) error

	// Delete removes the request. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all requests.
	List(ctx context.Context) ([]*PaymentRequest, error)
}

// MemoryStore is an in-memory Store for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]PaymentRequest
}

// NewMemoryStore creates an empty in-memory request store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]PaymentRequest)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	out := req
	return &out, nil
}

func (s *MemoryStore) Put(ctx context.Context, req *PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.requests, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*PaymentRequest, 0, len(s.requests))
	for _, req := range s.requests {
		cp := req
		out = append(out, &cp)
	}
	return out, nil
}
