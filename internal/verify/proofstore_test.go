package verify

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProofStore(t *testing.T) {
	s := NewMemoryProofStore(time.Hour)
	ctx := context.Background()

	consumed, err := s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, consumed)

	ok, err := s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, ok)

	consumed, err = s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestMemoryProofStoreRetention(t *testing.T) {
	s := NewMemoryProofStore(time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)

	// Past retention the reference drops out and can be seen as fresh.
	now = now.Add(2 * time.Hour)
	consumed, err := s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, consumed)
}

func setupRedisStore(t *testing.T, retention time.Duration) (*RedisProofStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	port, _ := strconv.Atoi(mr.Port())
	c, err := cache.NewCache(config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewRedisProofStore(c, retention), mr
}

func TestRedisProofStore(t *testing.T) {
	s, _ := setupRedisStore(t, time.Hour)
	ctx := context.Background()

	consumed, err := s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, consumed)

	ok, err := s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, ok)

	consumed, err = s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.True(t, consumed)
}

func TestRedisProofStoreRetentionTTL(t *testing.T) {
	s, mr := setupRedisStore(t, time.Hour)
	ctx := context.Background()

	_, err := s.MarkConsumed(ctx, "0xtx1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	consumed, err := s.IsConsumed(ctx, "0xtx1")
	require.NoError(t, err)
	assert.False(t, consumed)
}
