package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cdpwatch/internal/model"
	"cdpwatch/internal/watchlist"
)

const schema = `
CREATE TABLE IF NOT EXISTS watch_entries (
	id              UUID PRIMARY KEY,
	watcher_id      TEXT NOT NULL,
	position_id     BIGINT NOT NULL,
	threshold_ratio NUMERIC NOT NULL CHECK (threshold_ratio > 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (watcher_id, position_id)
)`

const selectColumns = `id::text, watcher_id, position_id, threshold_ratio::text, created_at`

// Store provides Postgres persistence for the watchlist.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	store := &Store{pool: pool}
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the watch_entries table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate watch_entries: %w", err)
	}
	return nil
}

// Add inserts an entry; the unique (watcher_id, position_id) constraint
// turns a concurrent duplicate into zero returned rows.
func (s *Store) Add(ctx context.Context, watcherID string, positionID uint64, threshold decimal.Decimal) (model.WatchEntry, error) {
	if err := watchlist.ValidateThreshold(threshold); err != nil {
		return model.WatchEntry{}, err
	}
	if positionID > 1<<63-1 {
		return model.WatchEntry{}, fmt.Errorf("position id %d out of range", positionID)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO watch_entries (id, watcher_id, position_id, threshold_ratio, created_at)
		VALUES ($1, $2, $3, $4::numeric, now())
		ON CONFLICT (watcher_id, position_id) DO NOTHING
		RETURNING `+selectColumns,
		uuid.NewString(),
		watcherID,
		int64(positionID),
		threshold.String(),
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WatchEntry{}, watchlist.ErrDuplicate
		}
		return model.WatchEntry{}, fmt.Errorf("insert watch entry: %w", err)
	}
	return entry, nil
}

// Remove deletes an entry by id.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM watch_entries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete watch entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Find(ctx context.Context, watcherID string, positionID uint64) (model.WatchEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM watch_entries
		WHERE watcher_id = $1 AND position_id = $2
	`, watcherID, int64(positionID))
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WatchEntry{}, false, nil
		}
		return model.WatchEntry{}, false, fmt.Errorf("find watch entry: %w", err)
	}
	return entry, true, nil
}

// List returns every entry. A single SELECT reads one consistent snapshot.
func (s *Store) List(ctx context.Context) ([]model.WatchEntry, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM watch_entries
		ORDER BY created_at, id
	`)
}

func (s *Store) ListByWatcher(ctx context.Context, watcherID string) ([]model.WatchEntry, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM watch_entries
		WHERE watcher_id = $1
		ORDER BY created_at, id
	`, watcherID)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]model.WatchEntry, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query watch entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.WatchEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read watch entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (model.WatchEntry, error) {
	var (
		entry      model.WatchEntry
		positionID int64
		threshold  string
		createdAt  time.Time
	)
	if err := row.Scan(&entry.ID, &entry.WatcherID, &positionID, &threshold, &createdAt); err != nil {
		return model.WatchEntry{}, err
	}
	parsed, err := decimal.NewFromString(threshold)
	if err != nil {
		return model.WatchEntry{}, fmt.Errorf("parse threshold %q: %w", threshold, err)
	}
	entry.PositionID = uint64(positionID)
	entry.Threshold = parsed
	entry.CreatedAt = createdAt.UTC()
	return entry, nil
}
