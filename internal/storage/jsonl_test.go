package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cdpwatch/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "alerts.jsonl")
	journal := NewJsonlJournal(path)

	first := []model.AlertRecord{{EntryID: "a", WatcherID: "100", PositionID: 42, Ratio: "1.5", Delivered: true, Removed: true}}
	second := []model.AlertRecord{
		{EntryID: "b", WatcherID: "200", PositionID: 7, Error: "delivery failed", Removed: true},
		{EntryID: "c", WatcherID: "300", PositionID: 9, Delivered: true, Removed: true},
	}

	if err := journal.PutAlerts(first); err != nil {
		t.Fatalf("put first batch: %v", err)
	}
	if err := journal.PutAlerts(nil); err != nil {
		t.Fatalf("put empty batch: %v", err)
	}
	if err := journal.PutAlerts(second); err != nil {
		t.Fatalf("put second batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var ids []string
	var seqs []uint64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line journalLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		ids = append(ids, line.EntryID)
		seqs = append(seqs, line.Seq)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}

	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("unexpected journal contents: %v", ids)
	}
	if seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("unexpected sequence numbers: %v", seqs)
	}
}

func TestJsonlJournalFailedAppendKeepsSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.jsonl")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	journal := NewJsonlJournal(path)

	if err := journal.PutAlerts([]model.AlertRecord{{EntryID: "a"}}); err == nil {
		t.Fatalf("expected error writing to a directory")
	}
	if journal.seq != 0 {
		t.Fatalf("seq advanced on failure: %d", journal.seq)
	}
}
