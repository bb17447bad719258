// Package oracle describes the read-only view of chain state the monitor
// depends on.
package oracle

import (
	"context"
	"errors"

	"cdpwatch/internal/model"
)

// ErrUnavailable marks a failed or malformed oracle read. It is transient:
// callers skip the affected unit of work and try again next cycle.
var ErrUnavailable = errors.New("oracle unavailable")

// Oracle reads the global price feed and raw CDP state.
type Oracle interface {
	PriceFeed(ctx context.Context) (model.PriceFeed, error)
	Position(ctx context.Context, id uint64) (model.Position, error)
}
