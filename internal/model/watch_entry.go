package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WatchEntry is one watcher's subscription to alerts for one CDP.
type WatchEntry struct {
	ID         string          `json:"id"`
	WatcherID  string          `json:"watcher_id"`
	PositionID uint64          `json:"position_id"`
	Threshold  decimal.Decimal `json:"threshold"`
	CreatedAt  time.Time       `json:"created_at"`
}
