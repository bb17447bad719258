package command

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cdpwatch/internal/model"
	"cdpwatch/internal/notify"
	"cdpwatch/internal/oracle"
	"cdpwatch/internal/watchlist"
)

type fakeOracle struct {
	mu        sync.Mutex
	feedErr   error
	positions map[uint64]model.Position
	posErr    map[uint64]error
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		positions: make(map[uint64]model.Position),
		posErr:    make(map[uint64]error),
	}
}

func (f *fakeOracle) PriceFeed(context.Context) (model.PriceFeed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedErr != nil {
		return model.PriceFeed{}, f.feedErr
	}
	return model.PriceFeed{Par: big.NewRat(1, 1), Reference: big.NewRat(300, 1)}, nil
}

func (f *fakeOracle) Position(_ context.Context, id uint64) (model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.posErr[id]; err != nil {
		return model.Position{}, err
	}
	return f.positions[id], nil
}

// open returns a position with ratio = tag and liquidation price = mat.
func open(id uint64, tag, mat *big.Rat) model.Position {
	return model.Position{
		ID:         id,
		Owner:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Collateral: big.NewRat(1, 1),
		Debt:       big.NewRat(1, 1),
		Tag:        tag,
		Mat:        mat,
		Per:        big.NewRat(1, 1),
	}
}

func newService(t *testing.T) (*Service, *watchlist.MemoryStore, *fakeOracle) {
	t.Helper()
	store := watchlist.NewMemoryStore()
	orc := newFakeOracle()
	return NewService(store, orc, decimal.Decimal{}, 0, zap.NewNop()), store, orc
}

func TestWatchUsesDefaultThreshold(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	entry, err := svc.Watch(ctx, "W", 42, "")
	require.NoError(t, err)
	assert.True(t, entry.Threshold.Equal(watchlist.DefaultThreshold))

	found, ok, err := store.Find(ctx, "W", 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.ID, found.ID)
}

func TestWatchCustomDefault(t *testing.T) {
	svc := NewService(watchlist.NewMemoryStore(), newFakeOracle(), decimal.RequireFromString("1.75"), 0, nil)

	entry, err := svc.Watch(context.Background(), "W", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "175", watchlist.FormatPercent(entry.Threshold))
	assert.Contains(t, svc.Help(), "(default=175%)")
}

func TestWatchDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	_, err := svc.Watch(ctx, "W", 42, "150%")
	require.NoError(t, err)
	_, err = svc.Watch(ctx, "W", 42, "180")
	require.ErrorIs(t, err, ErrAlreadyWatching)

	entry, ok, err := store.Find(ctx, "W", 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "150", watchlist.FormatPercent(entry.Threshold), "first entry unchanged")

	// another watcher may watch the same position
	_, err = svc.Watch(ctx, "V", 42, "")
	require.NoError(t, err)
}

func TestWatchInvalidThreshold(t *testing.T) {
	svc, store, _ := newService(t)
	for _, in := range []string{"abc", "0", "-10%"} {
		_, err := svc.Watch(context.Background(), "W", 42, in)
		require.ErrorIs(t, err, ErrInvalidArgument, in)
	}
	assert.Equal(t, 0, store.Len())
}

func TestUnwatch(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	require.ErrorIs(t, svc.Unwatch(ctx, "W", 42), ErrNotWatching)

	_, err := svc.Watch(ctx, "W", 42, "")
	require.NoError(t, err)
	require.NoError(t, svc.Unwatch(ctx, "W", 42))
	assert.Equal(t, 0, store.Len())

	require.ErrorIs(t, svc.Unwatch(ctx, "W", 42), ErrNotWatching)
}

func TestUnwatchOnlyTouchesCaller(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	_, err := svc.Watch(ctx, "V", 42, "")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Unwatch(ctx, "W", 42), ErrNotWatching)
	assert.Equal(t, 1, store.Len())
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, orc := newService(t)

	orc.positions[1] = open(1, big.NewRat(3, 2), big.NewRat(250, 1))
	orc.positions[2] = model.Position{ID: 2}
	orc.posErr[3] = fmt.Errorf("%w: timeout", oracle.ErrUnavailable)

	for _, id := range []uint64{1, 2, 3} {
		_, err := svc.Watch(ctx, "W", id, "")
		require.NoError(t, err)
	}
	_, err := svc.Watch(ctx, "V", 9, "")
	require.NoError(t, err)

	rows, err := svc.Status(ctx, "W")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byID := make(map[uint64]StatusRow)
	for _, row := range rows {
		byID[row.Entry.PositionID] = row
	}
	assert.Equal(t, "1.50", byID[1].Snapshot.Ratio.FloatString(2))
	assert.True(t, byID[2].Snapshot.Closed)
	require.ErrorIs(t, byID[3].Err, oracle.ErrUnavailable)

	table := FormatStatus(rows)
	lines := strings.Split(table, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"ID", "Ratio", "Liq.", "Price"}, strings.Fields(lines[0]))

	cells := make(map[string][]string)
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		cells[fields[0]] = fields[1:]
	}
	assert.Equal(t, []string{"150.00%", "250.00$"}, cells["CDP-1"])
	assert.Equal(t, []string{"closed", "closed"}, cells["CDP-2"])
	assert.Equal(t, []string{"n/a", "n/a"}, cells["CDP-3"])
}

func TestStatusPriceFeedDown(t *testing.T) {
	ctx := context.Background()
	svc, _, orc := newService(t)
	orc.feedErr = oracle.ErrUnavailable
	orc.positions[1] = open(1, big.NewRat(2, 1), big.NewRat(100, 1))

	_, err := svc.Watch(ctx, "W", 1, "")
	require.NoError(t, err)

	rows, err := svc.Status(ctx, "W")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Error(t, rows[0].Err)
	assert.Contains(t, FormatStatus(rows), "n/a")
}

func TestHandleWatchFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	msg := svc.Handle(ctx, "W", "/watch", []string{"42", "150%"})
	assert.Equal(t, notify.FormatMarkdown, msg.Format)
	assert.Equal(t, "Sending you a private message if collateralization rate of `CDP-42` drops below `150%`", msg.Text)

	msg = svc.Handle(ctx, "W", "watch", []string{"42"})
	assert.Equal(t, "Already watching `CDP-42`!", msg.Text)

	msg = svc.Handle(ctx, "W", "unwatch", []string{"42"})
	assert.Equal(t, "You are no longer watching `CDP-42`", msg.Text)

	msg = svc.Handle(ctx, "W", "unwatch", []string{"42"})
	assert.Equal(t, "`CDP-42` is not on your watchlist!", msg.Text)

	msg = svc.Handle(ctx, "W", "status", nil)
	assert.Equal(t, "There is no CDP on your watchlist!", msg.Text)
}

func TestHandleMalformedRepliesWithHelp(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	help := svc.Help()

	cases := []struct {
		name string
		args []string
	}{
		{"watch", nil},
		{"watch", []string{"1", "2", "3"}},
		{"watch", []string{"abc"}},
		{"watch", []string{"-1"}},
		{"watch", []string{"42", "lots"}},
		{"watch", []string{"9223372036854775808"}},
		{"watch", []string{"18446744073709551615", "150%"}},
		{"watch", []string{"1", "1e3000000%"}},
		{"unwatch", []string{"9223372036854775808"}},
		{"unwatch", nil},
		{"unwatch", []string{"x"}},
		{"help", nil},
		{"frobnicate", []string{"1"}},
	}
	for _, tc := range cases {
		msg := svc.Handle(ctx, "W", tc.name, tc.args)
		assert.Equal(t, help, msg.Text, "%s %v", tc.name, tc.args)
	}
	assert.Equal(t, 0, store.Len())
}

func TestHandleStatusIsHTML(t *testing.T) {
	ctx := context.Background()
	svc, _, orc := newService(t)
	orc.positions[7] = open(7, big.NewRat(5, 2), big.NewRat(120, 1))

	_, err := svc.Watch(ctx, "W", 7, "")
	require.NoError(t, err)

	msg := svc.Handle(ctx, "W", "status", nil)
	assert.Equal(t, notify.FormatHTML, msg.Format)
	assert.True(t, strings.HasPrefix(msg.Text, "<pre>"))
	assert.True(t, strings.HasSuffix(msg.Text, "</pre>"))
	assert.Contains(t, msg.Text, "CDP-7")
	assert.Contains(t, msg.Text, "250.00%")
	assert.Contains(t, msg.Text, "120.00$")
}

func TestConcurrentWatchersDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			watcher := fmt.Sprintf("user-%d", i)
			svc.Handle(ctx, watcher, "watch", []string{"42"})
			svc.Handle(ctx, watcher, "watch", []string{"42"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, store.Len())
}

// blockingOracle hangs until the caller's context ends.
type blockingOracle struct{}

func (blockingOracle) PriceFeed(ctx context.Context) (model.PriceFeed, error) {
	<-ctx.Done()
	return model.PriceFeed{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, ctx.Err())
}

func (blockingOracle) Position(ctx context.Context, _ uint64) (model.Position, error) {
	<-ctx.Done()
	return model.Position{}, fmt.Errorf("%w: %w", oracle.ErrUnavailable, ctx.Err())
}

func TestStatusHungOracleTimesOut(t *testing.T) {
	store := watchlist.NewMemoryStore()
	svc := NewService(store, blockingOracle{}, decimal.Decimal{}, 100*time.Millisecond, zap.NewNop())

	_, err := svc.Watch(context.Background(), "W", 1, "")
	require.NoError(t, err)

	done := make(chan notify.Message, 1)
	go func() { done <- svc.Handle(context.WithoutCancel(context.Background()), "W", "status", nil) }()

	select {
	case msg := <-done:
		assert.Equal(t, notify.FormatHTML, msg.Format)
		assert.Contains(t, msg.Text, "n/a")
	case <-time.After(5 * time.Second):
		t.Fatal("status blocked on a hung oracle")
	}
}

func TestWatchRejectsOutOfRangeID(t *testing.T) {
	svc, store, _ := newService(t)
	_, err := svc.Watch(context.Background(), "W", math.MaxInt64+1, "")
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, store.Len())
}
