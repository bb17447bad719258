package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cdpwatch/internal/model"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int                `json:"version"`
	UpdatedAt string             `json:"updated_at"`
	Entries   []model.WatchEntry `json:"entries"`
}

type snapshotFile struct {
	path string
}

// OpenFileStore loads the watchlist saved at path (if any) and returns a
// store that rewrites the file on every mutation.
func OpenFileStore(path string) (*MemoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("watchlist path is required")
	}

	file := &snapshotFile{path: path}
	entries, err := file.load()
	if err != nil {
		return nil, err
	}

	store := NewMemoryStore()
	for _, entry := range entries {
		key := entryKey{watcherID: entry.WatcherID, positionID: entry.PositionID}
		if _, ok := store.index[key]; ok {
			return nil, fmt.Errorf("watchlist file has duplicate entry for watcher %s position %d", entry.WatcherID, entry.PositionID)
		}
		store.entries[entry.ID] = entry
		store.index[key] = entry.ID
	}
	store.file = file
	return store, nil
}

func (f *snapshotFile) load() ([]model.WatchEntry, error) {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat watchlist: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("watchlist path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported watchlist version %d", snap.Version)
	}
	return snap.Entries, nil
}

func (f *snapshotFile) save(entries []model.WatchEntry) error {
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watchlist dir: %w", err)
		}
	}

	snap := snapshot{
		Version:   snapshotVersion,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Entries:   entries,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write watchlist tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename watchlist: %w", err)
	}
	return nil
}
