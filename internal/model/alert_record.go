package model

// AlertRecord is the journal line written for every crossing event.
type AlertRecord struct {
	EntryID          string `json:"entry_id"`
	WatcherID        string `json:"watcher_id"`
	PositionID       uint64 `json:"position_id"`
	Threshold        string `json:"threshold"`
	Ratio            string `json:"ratio"`
	LiquidationPrice string `json:"liquidation_price"`
	Delivered        bool   `json:"delivered"`
	Error            string `json:"error,omitempty"`
	Removed          bool   `json:"removed"`
	DetectedAt       string `json:"detected_at"`
}
