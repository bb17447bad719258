package storage

import "cdpwatch/internal/model"

// Journal is a sink for alert records.
type Journal interface {
	PutAlerts(records []model.AlertRecord) error
}
