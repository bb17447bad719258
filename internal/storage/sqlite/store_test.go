package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpwatch/internal/watchlist"
	"cdpwatch/internal/watchlist/watchlisttest"
)

func TestStore(t *testing.T) {
	watchlisttest.Run(t, func(t *testing.T) watchlist.Store {
		store, err := Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cdps.sqlite")

	store, err := Open(path)
	require.NoError(t, err)
	entry, err := store.Add(ctx, "100", 42, decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	found, ok, err := reopened.Find(ctx, "100", 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.ID, found.ID)
	assert.True(t, found.Threshold.Equal(decimal.RequireFromString("1.25")))
}
