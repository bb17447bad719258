package watchlist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cdpwatch/internal/model"
)

type entryKey struct {
	watcherID  string
	positionID uint64
}

// MemoryStore keeps entries in memory. When opened with OpenFileStore every
// mutation is also written to disk before the lock is released.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.WatchEntry
	index   map[entryKey]string
	file    *snapshotFile
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]model.WatchEntry),
		index:   make(map[entryKey]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Add(_ context.Context, watcherID string, positionID uint64, threshold decimal.Decimal) (model.WatchEntry, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return model.WatchEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{watcherID: watcherID, positionID: positionID}
	if _, ok := s.index[key]; ok {
		return model.WatchEntry{}, ErrDuplicate
	}

	entry := model.WatchEntry{
		ID:         uuid.NewString(),
		WatcherID:  watcherID,
		PositionID: positionID,
		Threshold:  threshold,
		CreatedAt:  s.now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.index[key] = entry.ID

	if err := s.persistLocked(); err != nil {
		delete(s.entries, entry.ID)
		delete(s.index, key)
		return model.WatchEntry{}, err
	}
	return entry, nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	key := entryKey{watcherID: entry.WatcherID, positionID: entry.PositionID}
	delete(s.entries, id)
	delete(s.index, key)

	if err := s.persistLocked(); err != nil {
		s.entries[id] = entry
		s.index[key] = id
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Find(_ context.Context, watcherID string, positionID uint64) (model.WatchEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.index[entryKey{watcherID: watcherID, positionID: positionID}]
	if !ok {
		return model.WatchEntry{}, false, nil
	}
	return s.entries[id], true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectLocked(func(model.WatchEntry) bool { return true }), nil
}

func (s *MemoryStore) ListByWatcher(_ context.Context, watcherID string) ([]model.WatchEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collectLocked(func(e model.WatchEntry) bool { return e.WatcherID == watcherID }), nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) collectLocked(keep func(model.WatchEntry) bool) []model.WatchEntry {
	out := make([]model.WatchEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if keep(entry) {
			out = append(out, entry)
		}
	}
	sortEntries(out)
	return out
}

func (s *MemoryStore) persistLocked() error {
	if s.file == nil {
		return nil
	}
	entries := s.collectLocked(func(model.WatchEntry) bool { return true })
	if err := s.file.save(entries); err != nil {
		return fmt.Errorf("persist watchlist: %w", err)
	}
	return nil
}

func sortEntries(entries []model.WatchEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}
