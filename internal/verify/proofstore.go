package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hoddukzoa12/openclaw/pkg/cache"
)

// ErrProofReplayed is returned when a settlement reference has already been
// accepted once.
var ErrProofReplayed = errors.New("settlement proof already consumed")

// ProofStore tracks consumed settlement references. It is the sole defense
// against replaying one proof for multiple message credits, so MarkConsumed
// must be atomic: exactly one caller wins for a given reference.
type ProofStore interface {
	// IsConsumed reports whether ref has already been accepted.
	IsConsumed(ctx context.Context, ref string) (bool, error)

	// MarkConsumed records ref as accepted. Returns false if it was already
	// consumed.
	MarkConsumed(ctx context.Context, ref string) (bool, error)
}

// MemoryProofStore keeps consumed references in memory with a retention
// window, so the set does not grow without bound.
type MemoryProofStore struct {
	mu        sync.Mutex
	consumed  map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryProofStore creates a proof store retaining references for the
// given window. Zero retention keeps references forever.
func NewMemoryProofStore(retention time.Duration) *MemoryProofStore {
	return &MemoryProofStore{
		consumed:  make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

func (s *MemoryProofStore) IsConsumed(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	_, ok := s.consumed[ref]
	return ok, nil
}

func (s *MemoryProofStore) MarkConsumed(ctx context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()
	if _, ok := s.consumed[ref]; ok {
		return false, nil
	}
	s.consumed[ref] = s.now()
	return true, nil
}

// sweep drops references past retention. Callers hold the mutex.
func (s *MemoryProofStore) sweep() {
	if s.retention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.retention)
	for ref, at := range s.consumed {
		if at.Before(cutoff) {
			delete(s.consumed, ref)
		}
	}
}

// RedisProofStore tracks consumed references in Redis with a retention TTL,
// surviving restarts and shared across replicas.
type RedisProofStore struct {
	cache     *cache.Cache
	retention time.Duration
}

// NewRedisProofStore creates a Redis-backed proof store.
func NewRedisProofStore(c *cache.Cache, retention time.Duration) *RedisProofStore {
	return &RedisProofStore{cache: c, retention: retention}
}

func (s *RedisProofStore) key(ref string) string {
	return fmt.Sprintf("payments:consumed:%s", ref)
}

func (s *RedisProofStore) IsConsumed(ctx context.Context, ref string) (bool, error) {
	_, err := s.cache.Get(ctx, s.key(ref))
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check consumed proof: %w", err)
	}
	return true, nil
}

func (s *RedisProofStore) MarkConsumed(ctx context.Context, ref string) (bool, error) {
	set, err := s.cache.SetNX(ctx, s.key(ref), "consumed", s.retention)
	if err != nil {
		return false, fmt.Errorf("failed to mark proof consumed: %w", err)
	}
	return set, nil
}
