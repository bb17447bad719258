package monitor

import (
	"fmt"

	"cdpwatch/internal/liquidation"
	"cdpwatch/internal/model"
	"cdpwatch/internal/notify"
	"cdpwatch/internal/watchlist"
)

// AlertMessage builds the private message sent on a crossing event.
func AlertMessage(entry model.WatchEntry, snap model.Snapshot) notify.Message {
	return notify.Markdown(fmt.Sprintf(
		"`CDP-%d` collateralization ratio is below `%s%%`:\nRatio: `%s%%`\nLiquidation price: `%s$`",
		entry.PositionID,
		watchlist.FormatPercent(entry.Threshold),
		liquidation.FormatPercent(snap.Ratio),
		liquidation.FormatPrice(snap.LiquidationPrice),
	))
}
