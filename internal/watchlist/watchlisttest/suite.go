// Package watchlisttest runs the watchlist.Store contract against a backend.
package watchlisttest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpwatch/internal/watchlist"
)

// Run exercises newStore with the behaviour every backend must share.
// newStore must return an empty store each time it is called.
func Run(t *testing.T, newStore func(t *testing.T) watchlist.Store) {
	t.Helper()

	t.Run("add and find", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		entry, err := store.Add(ctx, "100", 42, decimal.RequireFromString("1.5"))
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "100", entry.WatcherID)
		assert.Equal(t, uint64(42), entry.PositionID)
		assert.True(t, entry.Threshold.Equal(decimal.RequireFromString("1.5")))
		assert.False(t, entry.CreatedAt.IsZero())

		found, ok, err := store.Find(ctx, "100", 42)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, entry.ID, found.ID)
		assert.True(t, found.Threshold.Equal(entry.Threshold))

		_, ok, err = store.Find(ctx, "100", 43)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate add is rejected", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		first, err := store.Add(ctx, "100", 42, watchlist.DefaultThreshold)
		require.NoError(t, err)

		_, err = store.Add(ctx, "100", 42, decimal.NewFromInt(3))
		require.ErrorIs(t, err, watchlist.ErrDuplicate)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.True(t, entries[0].Threshold.Equal(watchlist.DefaultThreshold))

		// same position for another watcher is fine
		_, err = store.Add(ctx, "200", 42, watchlist.DefaultThreshold)
		require.NoError(t, err)
	})

	t.Run("non-positive threshold is rejected", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, err := store.Add(ctx, "100", 1, decimal.Zero)
		require.ErrorIs(t, err, watchlist.ErrInvalidThreshold)
		_, err = store.Add(ctx, "100", 1, decimal.NewFromInt(-1))
		require.ErrorIs(t, err, watchlist.ErrInvalidThreshold)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		entry, err := store.Add(ctx, "100", 42, watchlist.DefaultThreshold)
		require.NoError(t, err)

		removed, err := store.Remove(ctx, entry.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = store.Remove(ctx, entry.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = store.Remove(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.False(t, removed)

		_, ok, err := store.Find(ctx, "100", 42)
		require.NoError(t, err)
		assert.False(t, ok)

		// the pair can be watched again after removal
		again, err := store.Add(ctx, "100", 42, watchlist.DefaultThreshold)
		require.NoError(t, err)
		assert.NotEqual(t, entry.ID, again.ID)
	})

	t.Run("remove by id keeps a re-created entry", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		stale, err := store.Add(ctx, "100", 42, watchlist.DefaultThreshold)
		require.NoError(t, err)
		_, err = store.Remove(ctx, stale.ID)
		require.NoError(t, err)
		fresh, err := store.Add(ctx, "100", 42, decimal.NewFromInt(3))
		require.NoError(t, err)

		removed, err := store.Remove(ctx, stale.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		found, ok, err := store.Find(ctx, "100", 42)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fresh.ID, found.ID)
	})

	t.Run("list by watcher", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for _, id := range []uint64{1, 2, 3} {
			_, err := store.Add(ctx, "100", id, watchlist.DefaultThreshold)
			require.NoError(t, err)
		}
		_, err := store.Add(ctx, "200", 9, watchlist.DefaultThreshold)
		require.NoError(t, err)

		mine, err := store.ListByWatcher(ctx, "100")
		require.NoError(t, err)
		require.Len(t, mine, 3)
		for _, entry := range mine {
			assert.Equal(t, "100", entry.WatcherID)
		}

		none, err := store.ListByWatcher(ctx, "300")
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("snapshot is isolated from later mutations", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		kept, err := store.Add(ctx, "100", 1, watchlist.DefaultThreshold)
		require.NoError(t, err)

		before, err := store.List(ctx)
		require.NoError(t, err)

		_, err = store.Add(ctx, "100", 2, watchlist.DefaultThreshold)
		require.NoError(t, err)
		_, err = store.Remove(ctx, kept.ID)
		require.NoError(t, err)

		require.Len(t, before, 1)
		assert.Equal(t, kept.ID, before[0].ID)
	})

	t.Run("concurrent adds keep one entry per pair", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		const workers = 16
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Add(ctx, "100", 7, watchlist.DefaultThreshold)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var ok, dup int
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, watchlist.ErrDuplicate):
				dup++
			default:
				t.Errorf("unexpected add error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dup)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}
