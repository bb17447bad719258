// Package watchlist holds the durable set of watch entries shared by the
// monitoring loop and the command interface.
package watchlist

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"cdpwatch/internal/model"
)

var (
	// ErrDuplicate is returned by Add when the watcher already watches the position.
	ErrDuplicate = errors.New("watch entry already exists")
	// ErrInvalidThreshold is returned by Add for a non-positive threshold.
	ErrInvalidThreshold = errors.New("threshold must be positive")
)

// DefaultThreshold is the ratio used when a watcher does not pick one (200%).
var DefaultThreshold = decimal.NewFromInt(2)

// Store is the watchlist persistence contract. Mutations are atomic with
// respect to each other and to List/ListByWatcher snapshots.
type Store interface {
	Add(ctx context.Context, watcherID string, positionID uint64, threshold decimal.Decimal) (model.WatchEntry, error)
	Remove(ctx context.Context, id string) (bool, error)
	Find(ctx context.Context, watcherID string, positionID uint64) (model.WatchEntry, bool, error)
	List(ctx context.Context) ([]model.WatchEntry, error)
	ListByWatcher(ctx context.Context, watcherID string) ([]model.WatchEntry, error)
}

// ValidateThreshold rejects zero and negative thresholds.
func ValidateThreshold(threshold decimal.Decimal) error {
	if !threshold.IsPositive() {
		return ErrInvalidThreshold
	}
	return nil
}
