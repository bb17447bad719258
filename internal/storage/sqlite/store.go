// Package sqlite keeps the watchlist in a SQLite database through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cdpwatch/internal/model"
	"cdpwatch/internal/watchlist"
)

type watchRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	WatcherID  string    `gorm:"not null;uniqueIndex:idx_watch_entries_watcher_position"`
	PositionID uint64    `gorm:"not null;uniqueIndex:idx_watch_entries_watcher_position"`
	Threshold  string    `gorm:"column:threshold_ratio;not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

func (watchRecord) TableName() string { return "watch_entries" }

// Store is a gorm-backed watchlist. Writes are serialized by mu in addition
// to the unique index.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// Open connects to the SQLite database at dsn (a path or ":memory:") and
// migrates the schema.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one connection keeps ":memory:" databases shared and writes ordered
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&watchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate watch_entries: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Add(ctx context.Context, watcherID string, positionID uint64, threshold decimal.Decimal) (model.WatchEntry, error) {
	if err := watchlist.ValidateThreshold(threshold); err != nil {
		return model.WatchEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := watchRecord{
		ID:         uuid.NewString(),
		WatcherID:  watcherID,
		PositionID: positionID,
		Threshold:  threshold.String(),
		CreatedAt:  time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&watchRecord{}).
			Where("watcher_id = ? AND position_id = ?", watcherID, positionID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return watchlist.ErrDuplicate
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		if errors.Is(err, watchlist.ErrDuplicate) {
			return model.WatchEntry{}, err
		}
		return model.WatchEntry{}, fmt.Errorf("insert watch entry: %w", err)
	}
	return toEntry(record)
}

func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&watchRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("delete watch entry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Find(ctx context.Context, watcherID string, positionID uint64) (model.WatchEntry, bool, error) {
	var record watchRecord
	err := s.db.WithContext(ctx).
		Where("watcher_id = ? AND position_id = ?", watcherID, positionID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.WatchEntry{}, false, nil
		}
		return model.WatchEntry{}, false, fmt.Errorf("find watch entry: %w", err)
	}
	entry, err := toEntry(record)
	if err != nil {
		return model.WatchEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) List(ctx context.Context) ([]model.WatchEntry, error) {
	var records []watchRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	return toEntries(records)
}

func (s *Store) ListByWatcher(ctx context.Context, watcherID string) ([]model.WatchEntry, error) {
	var records []watchRecord
	if err := s.db.WithContext(ctx).
		Where("watcher_id = ?", watcherID).
		Order("created_at, id").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list watch entries: %w", err)
	}
	return toEntries(records)
}

func toEntries(records []watchRecord) ([]model.WatchEntry, error) {
	entries := make([]model.WatchEntry, 0, len(records))
	for _, record := range records {
		entry, err := toEntry(record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toEntry(record watchRecord) (model.WatchEntry, error) {
	threshold, err := decimal.NewFromString(record.Threshold)
	if err != nil {
		return model.WatchEntry{}, fmt.Errorf("parse threshold %q: %w", record.Threshold, err)
	}
	return model.WatchEntry{
		ID:         record.ID,
		WatcherID:  record.WatcherID,
		PositionID: record.PositionID,
		Threshold:  threshold,
		CreatedAt:  record.CreatedAt.UTC(),
	}, nil
}
