package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"match-call-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, userID string) models.WaitingEntry {
	return models.WaitingEntry{ID: id, UserID: userID, EnqueuedAt: time.Now()}
}

func TestMemoryWaitingPool(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot keeps insertion order", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		require.NoError(t, pool.Enqueue(ctx, entry("e1", "A")))
		require.NoError(t, pool.Enqueue(ctx, entry("e2", "B")))
		require.NoError(t, pool.Enqueue(ctx, entry("e3", "C")))

		snap, err := pool.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, snap, 3)
		assert.Equal(t, "A", snap[0].UserID)
		assert.Equal(t, "B", snap[1].UserID)
		assert.Equal(t, "C", snap[2].UserID)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		require.NoError(t, pool.Enqueue(ctx, entry("e1", "A")))

		snap, _ := pool.Snapshot(ctx)
		snap[0].UserID = "mutated"

		again, _ := pool.Snapshot(ctx)
		assert.Equal(t, "A", again[0].UserID)
	})

	t.Run("enqueue does not dedup", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		require.NoError(t, pool.Enqueue(ctx, entry("e1", "A")))
		require.NoError(t, pool.Enqueue(ctx, entry("e2", "A")))

		n, err := pool.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("remove deletes every entry of the user", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		require.NoError(t, pool.Enqueue(ctx, entry("e1", "A")))
		require.NoError(t, pool.Enqueue(ctx, entry("e2", "B")))
		require.NoError(t, pool.Enqueue(ctx, entry("e3", "A")))

		n, err := pool.Remove(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		snap, _ := pool.Snapshot(ctx)
		require.Len(t, snap, 1)
		assert.Equal(t, "B", snap[0].UserID)
	})

	t.Run("remove of absent user is a no-op", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		require.NoError(t, pool.Enqueue(ctx, entry("e1", "A")))

		n, err := pool.Remove(ctx, "Z")
		require.NoError(t, err)
		assert.Zero(t, n)

		size, _ := pool.Size(ctx)
		assert.Equal(t, 1, size)
	})

	t.Run("claim removes the entry and the user's duplicates", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		first := entry("e1", "A")
		require.NoError(t, pool.Enqueue(ctx, first))
		require.NoError(t, pool.Enqueue(ctx, entry("e2", "B")))
		require.NoError(t, pool.Enqueue(ctx, entry("e3", "A")))

		ok, err := pool.Claim(ctx, first)
		require.NoError(t, err)
		assert.True(t, ok)

		snap, _ := pool.Snapshot(ctx)
		require.Len(t, snap, 1)
		assert.Equal(t, "B", snap[0].UserID)
	})

	t.Run("second claim of the same entry loses", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		e := entry("e1", "A")
		require.NoError(t, pool.Enqueue(ctx, e))

		ok, err := pool.Claim(ctx, e)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = pool.Claim(ctx, e)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		pool := NewMemoryWaitingPool()
		e := entry("e1", "A")
		require.NoError(t, pool.Enqueue(ctx, e))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, _ := pool.Claim(ctx, e)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestMemoryRequestLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("first caller wins", func(t *testing.T) {
		locker := NewMemoryRequestLocker()

		ok, err := locker.TryLock(ctx, "req-1", "node-a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = locker.TryLock(ctx, "req-1", "node-b")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = locker.TryLock(ctx, "req-2", "node-b")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("purge drops only expired claims", func(t *testing.T) {
		locker := NewMemoryRequestLocker()
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		locker.now = func() time.Time { return base }
		_, _ = locker.TryLock(ctx, "old", "n")

		locker.now = func() time.Time { return base.Add(9 * time.Minute) }
		_, _ = locker.TryLock(ctx, "new", "n")

		locker.now = func() time.Time { return base.Add(11 * time.Minute) }
		n, err := locker.PurgeExpired(ctx, 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, _ := locker.TryLock(ctx, "old", "n")
		assert.True(t, ok, "purged request can be locked again")
		ok, _ = locker.TryLock(ctx, "new", "n")
		assert.False(t, ok)
	})
}
