// Package command implements the chat commands that let users manage their
// watchlist and inspect their CDPs.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cdpwatch/internal/liquidation"
	"cdpwatch/internal/model"
	"cdpwatch/internal/notify"
	"cdpwatch/internal/oracle"
	"cdpwatch/internal/watchlist"
)

var (
	ErrAlreadyWatching = errors.New("already watching")
	ErrNotWatching     = errors.New("not watching")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service converts user commands into watchlist mutations and status reads.
// It never talks to the monitoring loop directly.
type Service struct {
	store            watchlist.Store
	oracle           oracle.Oracle
	defaultThreshold decimal.Decimal
	callTimeout      time.Duration
	logger           *zap.Logger
}

// DefaultCallTimeout bounds a single oracle read made for /status.
const DefaultCallTimeout = 15 * time.Second

// NewService builds a Service. A non-positive defaultThreshold falls back
// to watchlist.DefaultThreshold, a non-positive callTimeout to
// DefaultCallTimeout.
func NewService(store watchlist.Store, o oracle.Oracle, defaultThreshold decimal.Decimal, callTimeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if watchlist.ValidateThreshold(defaultThreshold) != nil {
		defaultThreshold = watchlist.DefaultThreshold
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Service{
		store:            store,
		oracle:           o,
		defaultThreshold: defaultThreshold,
		callTimeout:      callTimeout,
		logger:           logger,
	}
}

// Watch adds positionID to the watcher's watchlist. thresholdPercent is the
// optional user argument ("150", "150%"); empty means the default.
func (s *Service) Watch(ctx context.Context, watcherID string, positionID uint64, thresholdPercent string) (model.WatchEntry, error) {
	if positionID > math.MaxInt64 {
		return model.WatchEntry{}, fmt.Errorf("%w: cdp id %d out of range", ErrInvalidArgument, positionID)
	}
	threshold := s.defaultThreshold
	if strings.TrimSpace(thresholdPercent) != "" {
		parsed, err := watchlist.ParsePercent(thresholdPercent)
		if err != nil {
			return model.WatchEntry{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		threshold = parsed
	}

	entry, err := s.store.Add(ctx, watcherID, positionID, threshold)
	switch {
	case errors.Is(err, watchlist.ErrDuplicate):
		return model.WatchEntry{}, ErrAlreadyWatching
	case errors.Is(err, watchlist.ErrInvalidThreshold):
		return model.WatchEntry{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case err != nil:
		return model.WatchEntry{}, fmt.Errorf("add watch entry: %w", err)
	}
	return entry, nil
}

// Unwatch removes the watcher's entry for positionID.
func (s *Service) Unwatch(ctx context.Context, watcherID string, positionID uint64) error {
	entry, ok, err := s.store.Find(ctx, watcherID, positionID)
	if err != nil {
		return fmt.Errorf("find watch entry: %w", err)
	}
	if !ok {
		return ErrNotWatching
	}
	removed, err := s.store.Remove(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("remove watch entry: %w", err)
	}
	if !removed {
		// the monitoring loop fired and removed it in between
		return ErrNotWatching
	}
	return nil
}

// StatusRow is one line of a status report. Err is set when the position
// could not be read; Snapshot is then zero.
type StatusRow struct {
	Entry    model.WatchEntry
	Snapshot model.Snapshot
	Err      error
}

// Status reads every live entry of the watcher and computes its metrics.
// Oracle failures are reported per row, never for the whole report.
func (s *Service) Status(ctx context.Context, watcherID string) ([]StatusRow, error) {
	entries, err := s.store.ListByWatcher(ctx, watcherID)
	if err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	rows := make([]StatusRow, len(entries))
	feed, feedErr := s.priceFeed(ctx)
	if feedErr != nil {
		s.logger.Warn("status price feed unavailable", zap.Error(feedErr))
	}
	for i, entry := range entries {
		rows[i] = StatusRow{Entry: entry}
		if feedErr != nil {
			rows[i].Err = feedErr
			continue
		}
		pos, err := s.position(ctx, entry.PositionID)
		if err != nil {
			s.logger.Warn("status position unavailable", zap.Uint64("cdp_id", entry.PositionID), zap.Error(err))
			rows[i].Err = err
			continue
		}
		rows[i].Snapshot = liquidation.Calculate(pos, feed.Par)
	}
	return rows, nil
}

func (s *Service) priceFeed(ctx context.Context) (model.PriceFeed, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.oracle.PriceFeed(ctx)
}

func (s *Service) position(ctx context.Context, id uint64) (model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.oracle.Position(ctx, id)
}

// Help returns the usage text.
func (s *Service) Help() string {
	return "*/watch <cdp_id> [<ratio>%]:* Add a CDP with the given ID to your watchlist.\n" +
		"The bot will send you a private notification if the collateralization is below the given ratio " +
		"`(default=" + watchlist.FormatPercent(s.defaultThreshold) + "%)`\n" +
		"\n" +
		"*/unwatch <cdp_id>*: Remove CDP from your watchlist\n" +
		"\n" +
		"*/status*: Show your current watchlist\n" +
		"\n" +
		"*/help*: Show this message"
}

const internalErrorText = "Something went wrong, please try again later."

// Handle runs a chat command and returns the reply. name may carry a
// leading slash. Malformed arguments and unknown commands get the help text.
func (s *Service) Handle(ctx context.Context, watcherID, name string, args []string) notify.Message {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	log := s.logger.With(zap.String("watcher_id", watcherID), zap.String("command", name))
	log.Info("command received", zap.Strings("args", args))

	switch name {
	case "watch":
		return s.handleWatch(ctx, log, watcherID, args)
	case "unwatch":
		return s.handleUnwatch(ctx, log, watcherID, args)
	case "status":
		return s.handleStatus(ctx, log, watcherID)
	default:
		return notify.Markdown(s.Help())
	}
}

func (s *Service) handleWatch(ctx context.Context, log *zap.Logger, watcherID string, args []string) notify.Message {
	if len(args) < 1 || len(args) > 2 {
		return notify.Markdown(s.Help())
	}
	positionID, err := parsePositionID(args[0])
	if err != nil {
		log.Debug("invalid watch argument", zap.Error(err))
		return notify.Markdown(s.Help())
	}
	var threshold string
	if len(args) == 2 {
		threshold = args[1]
	}

	entry, err := s.Watch(ctx, watcherID, positionID, threshold)
	switch {
	case errors.Is(err, ErrAlreadyWatching):
		log.Debug("duplicate watch", zap.Uint64("cdp_id", positionID))
		return notify.Markdown(fmt.Sprintf("Already watching `CDP-%d`!", positionID))
	case errors.Is(err, ErrInvalidArgument):
		log.Debug("invalid watch argument", zap.Error(err))
		return notify.Markdown(s.Help())
	case err != nil:
		log.Error("watch failed", zap.Error(err))
		return notify.Markdown(internalErrorText)
	}
	return notify.Markdown(fmt.Sprintf(
		"Sending you a private message if collateralization rate of `CDP-%d` drops below `%s%%`",
		entry.PositionID, watchlist.FormatPercent(entry.Threshold),
	))
}

func (s *Service) handleUnwatch(ctx context.Context, log *zap.Logger, watcherID string, args []string) notify.Message {
	if len(args) != 1 {
		return notify.Markdown(s.Help())
	}
	positionID, err := parsePositionID(args[0])
	if err != nil {
		log.Debug("invalid unwatch argument", zap.Error(err))
		return notify.Markdown(s.Help())
	}

	err = s.Unwatch(ctx, watcherID, positionID)
	switch {
	case errors.Is(err, ErrNotWatching):
		log.Debug("unwatch of unknown entry", zap.Uint64("cdp_id", positionID))
		return notify.Markdown(fmt.Sprintf("`CDP-%d` is not on your watchlist!", positionID))
	case err != nil:
		log.Error("unwatch failed", zap.Error(err))
		return notify.Markdown(internalErrorText)
	}
	return notify.Markdown(fmt.Sprintf("You are no longer watching `CDP-%d`", positionID))
}

func (s *Service) handleStatus(ctx context.Context, log *zap.Logger, watcherID string) notify.Message {
	rows, err := s.Status(ctx, watcherID)
	if err != nil {
		log.Error("status failed", zap.Error(err))
		return notify.Markdown(internalErrorText)
	}
	if len(rows) == 0 {
		return notify.Markdown("There is no CDP on your watchlist!")
	}
	return notify.HTML("<pre>" + html.EscapeString(FormatStatus(rows)) + "</pre>")
}

// FormatStatus renders rows as an aligned ID / Ratio / Liq. Price table.
func FormatStatus(rows []StatusRow) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRatio\tLiq. Price")
	fmt.Fprintln(w, "--\t-----\t----------")
	for _, row := range rows {
		ratio, price := "n/a", "n/a"
		switch {
		case row.Err != nil:
		case row.Snapshot.Closed:
			ratio, price = "closed", "closed"
		default:
			ratio = liquidation.FormatPercent(row.Snapshot.Ratio) + "%"
			price = liquidation.FormatPrice(row.Snapshot.LiquidationPrice) + "$"
		}
		fmt.Fprintf(w, "CDP-%d\t%s\t%s\n", row.Entry.PositionID, ratio, price)
	}
	_ = w.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

// parsePositionID accepts ids up to MaxInt64, the widest every store
// backend can hold.
func parsePositionID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id > math.MaxInt64 {
		return 0, fmt.Errorf("%w: cdp id %q", ErrInvalidArgument, s)
	}
	return id, nil
}
