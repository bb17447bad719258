package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cdpwatch/internal/model"
)

// JsonlJournal is an append-only JSONL file of alert records. Each batch is
// encoded in memory first so a failed marshal never leaves a partial line,
// and the file is fsynced before PutAlerts returns.
type JsonlJournal struct {
	path string
	mu   sync.Mutex
	seq  uint64
}

func NewJsonlJournal(path string) *JsonlJournal {
	return &JsonlJournal{path: path}
}

type journalLine struct {
	Seq uint64 `json:"seq"`
	model.AlertRecord
}

// PutAlerts appends one line per record, numbered in write order since
// the journal was opened.
func (j *JsonlJournal) PutAlerts(records []model.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	batch := make([]byte, 0, 256*len(records))
	seq := j.seq
	for _, record := range records {
		seq++
		line, err := json.Marshal(journalLine{Seq: seq, AlertRecord: record})
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", record.EntryID, err)
		}
		batch = append(batch, line...)
		batch = append(batch, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := file.Write(batch); err != nil {
		file.Close()
		return fmt.Errorf("append %d alerts: %w", len(records), err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	j.seq = seq
	return nil
}
