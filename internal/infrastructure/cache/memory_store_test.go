package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewInMemoryIdempotencyStore(time.Hour)
	s.now = clock.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestInMemoryIdempotencyStore_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("first claim wins", func(t *testing.T) {
		s, _ := newTestMemoryStore(t)

		ok, err := s.Claim(ctx, "doc-1:abc", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Claim(ctx, "doc-1:abc", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired claim can be taken again", func(t *testing.T) {
		s, clock := newTestMemoryStore(t)

		ok, _ := s.Claim(ctx, "doc-2:abc", time.Minute)
		require.True(t, ok)

		clock.Advance(2 * time.Minute)
		claimed, err := s.IsClaimed(ctx, "doc-2:abc")
		require.NoError(t, err)
		assert.False(t, claimed)

		ok, err = s.Claim(ctx, "doc-2:abc", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release frees the key", func(t *testing.T) {
		s, _ := newTestMemoryStore(t)

		ok, _ := s.Claim(ctx, "doc-3:abc", time.Hour)
		require.True(t, ok)
		require.NoError(t, s.Release(ctx, "doc-3:abc"))
		require.NoError(t, s.Release(ctx, "never-claimed"))

		claimed, _ := s.IsClaimed(ctx, "doc-3:abc")
		assert.False(t, claimed)
		ok, _ = s.Claim(ctx, "doc-3:abc", time.Hour)
		assert.True(t, ok)
	})
}

func TestInMemoryIdempotencyStore_ConcurrentClaims(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(ctx, "same-key", time.Hour); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	_, _ = s.Claim(ctx, "short", time.Minute)
	_, _ = s.Claim(ctx, "long", time.Hour)
	require.Equal(t, 2, s.Size())

	clock.Advance(10 * time.Minute)
	s.cleanup()

	assert.Equal(t, 1, s.Size())
	claimed, _ := s.IsClaimed(ctx, "long")
	assert.True(t, claimed)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	s := NewInMemoryIdempotencyStore(0)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
