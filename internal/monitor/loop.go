// Package monitor runs the periodic scan that compares every watched CDP
// with its watcher's threshold and alerts on crossings.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cdpwatch/internal/liquidation"
	"cdpwatch/internal/model"
	"cdpwatch/internal/notify"
	"cdpwatch/internal/oracle"
	"cdpwatch/internal/storage"
	"cdpwatch/internal/watchlist"
)

const (
	// DefaultInterval approximates four blocks of 15s.
	DefaultInterval    = 60 * time.Second
	DefaultCallTimeout = 15 * time.Second
)

// Config holds runtime settings for the loop.
type Config struct {
	Interval    time.Duration
	CallTimeout time.Duration
	// Workers bounds how many entries are evaluated in parallel.
	Workers int
	// RetainOnFailure keeps an entry whose alert could not be delivered so
	// the next cycle tries again. Off by default: an entry is removed as
	// soon as its crossing is detected, so a watcher is alerted at most once.
	RetainOnFailure bool
}

// Notifier delivers an alert to a watcher.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message, recipientID string) error
}

// Loop is the monitoring state machine: fetch price, scan, sleep.
type Loop struct {
	cfg      Config
	oracle   oracle.Oracle
	store    watchlist.Store
	notifier Notifier
	journal  storage.Journal
	logger   *zap.Logger
	now      func() time.Time
}

// NewLoop builds a Loop with its dependencies. journal may be nil.
func NewLoop(cfg Config, o oracle.Oracle, store watchlist.Store, notifier Notifier, journal storage.Journal, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Loop{
		cfg:      cfg,
		oracle:   o,
		store:    store,
		notifier: notifier,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	PriceFailed bool
	StoreFailed bool
	Entries     int
	Evaluated   int
	Skipped     int
	Failed      int
	Alerted     int
	Delivered   int
	Removed     int
}

// Run executes cycles until ctx is cancelled. Cancellation is observed
// between cycles; a scan already running completes first.
func (l *Loop) Run(ctx context.Context) error {
	if l.oracle == nil {
		return fmt.Errorf("oracle is nil")
	}
	if l.store == nil {
		return fmt.Errorf("store is nil")
	}
	if l.notifier == nil {
		return fmt.Errorf("notifier is nil")
	}

	l.logger.Info("monitor start",
		zap.Duration("interval", l.cfg.Interval),
		zap.Duration("call_timeout", l.cfg.CallTimeout),
		zap.Int("workers", l.cfg.Workers),
		zap.Bool("retain_on_failure", l.cfg.RetainOnFailure),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("monitor stopped")
			return nil
		default:
		}

		l.RunCycle(context.WithoutCancel(ctx))

		timer := time.NewTimer(l.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs one price fetch and one scan over the watchlist.
func (l *Loop) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	var report CycleReport

	feed, err := l.priceFeed(ctx)
	if err != nil {
		oracleErrorsTotal.WithLabelValues("price_feed").Inc()
		cyclesTotal.WithLabelValues("price_unavailable").Inc()
		l.logger.Warn("price feed unavailable, skipping cycle", zap.Error(err))
		report.PriceFailed = true
		return report
	}
	l.logger.Info("price feed",
		zap.String("reference", liquidation.FormatPrice(feed.Reference)),
		zap.String("par", liquidation.FormatPrice(feed.Par)),
	)

	entries, err := l.store.List(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("store_error").Inc()
		l.logger.Error("list watchlist", zap.Error(err))
		report.StoreFailed = true
		return report
	}
	report.Entries = len(entries)
	watchedEntries.Set(float64(len(entries)))

	results := make([]entryResult, len(entries))
	var g errgroup.Group
	g.SetLimit(l.cfg.Workers)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			results[i] = l.processEntry(ctx, feed, entry)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]model.AlertRecord, 0)
	for _, res := range results {
		switch res.outcome {
		case outcomeFailed:
			report.Failed++
		case outcomeSkipped:
			report.Evaluated++
			report.Skipped++
		case outcomeHealthy:
			report.Evaluated++
		case outcomeAlerted:
			report.Evaluated++
			report.Alerted++
		}
		if res.delivered {
			report.Delivered++
		}
		if res.removed {
			report.Removed++
		}
		if res.record != nil {
			records = append(records, *res.record)
		}
	}

	if l.journal != nil {
		if err := l.journal.PutAlerts(records); err != nil {
			l.logger.Warn("write alert journal", zap.Error(err), zap.Int("records", len(records)))
		}
	}

	cyclesTotal.WithLabelValues("ok").Inc()
	cycleDuration.Observe(time.Since(start).Seconds())
	l.logger.Info("cycle complete",
		zap.Int("entries", report.Entries),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("failed", report.Failed),
		zap.Int("alerted", report.Alerted),
		zap.Int("removed", report.Removed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report
}

type entryOutcome int

const (
	outcomeFailed entryOutcome = iota
	outcomeSkipped
	outcomeHealthy
	outcomeAlerted
)

type entryResult struct {
	outcome   entryOutcome
	delivered bool
	removed   bool
	record    *model.AlertRecord
}

func (l *Loop) processEntry(ctx context.Context, feed model.PriceFeed, entry model.WatchEntry) (res entryResult) {
	log := l.logger.With(
		zap.String("entry_id", entry.ID),
		zap.Uint64("cdp_id", entry.PositionID),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("entry processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			res = entryResult{outcome: outcomeFailed}
		}
	}()

	pos, err := l.position(ctx, entry.PositionID)
	if err != nil {
		oracleErrorsTotal.WithLabelValues("position").Inc()
		log.Warn("position unavailable", zap.Error(err))
		return entryResult{outcome: outcomeFailed}
	}
	evaluationsTotal.Inc()

	snap := liquidation.Calculate(pos, feed.Par)
	if snap.Closed {
		log.Debug("cdp is closed")
		return entryResult{outcome: outcomeSkipped}
	}
	if !snap.HasRatio() {
		log.Debug("cdp has no collateral or debt")
		return entryResult{outcome: outcomeSkipped}
	}

	log.Info("cdp checked",
		zap.String("ratio_pct", liquidation.FormatPercent(snap.Ratio)),
		zap.String("liq_price", liquidation.FormatPrice(snap.LiquidationPrice)),
		zap.String("threshold_pct", watchlist.FormatPercent(entry.Threshold)),
	)

	if !liquidation.Below(snap, entry.Threshold.Rat()) {
		return entryResult{outcome: outcomeHealthy}
	}

	res = entryResult{outcome: outcomeAlerted}
	record := model.AlertRecord{
		EntryID:          entry.ID,
		WatcherID:        entry.WatcherID,
		PositionID:       entry.PositionID,
		Threshold:        entry.Threshold.String(),
		Ratio:            snap.Ratio.FloatString(18),
		LiquidationPrice: snap.LiquidationPrice.FloatString(18),
		DetectedAt:       l.now().UTC().Format(time.RFC3339Nano),
	}
	res.record = &record

	if err := l.send(ctx, AlertMessage(entry, snap), entry.WatcherID); err != nil {
		alertsTotal.WithLabelValues("failed").Inc()
		record.Error = err.Error()
		log.Warn("alert delivery failed", zap.String("watcher_id", entry.WatcherID), zap.Error(err))
		if l.cfg.RetainOnFailure {
			log.Info("entry kept for next cycle")
			return res
		}
	} else {
		alertsTotal.WithLabelValues("delivered").Inc()
		record.Delivered = true
		res.delivered = true
	}

	removed, err := l.store.Remove(ctx, entry.ID)
	if err != nil {
		log.Error("remove watch entry", zap.Error(err))
		return res
	}
	if !removed {
		log.Debug("watch entry already removed")
	}
	record.Removed = removed
	res.removed = removed
	return res
}

func (l *Loop) priceFeed(ctx context.Context) (model.PriceFeed, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	return l.oracle.PriceFeed(ctx)
}

func (l *Loop) send(ctx context.Context, msg notify.Message, recipientID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	return l.notifier.Send(ctx, msg, recipientID)
}

func (l *Loop) position(ctx context.Context, id uint64) (model.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	return l.oracle.Position(ctx, id)
}
