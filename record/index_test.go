// ABOUTME: Tests for the recordings catalog: CRUD, upsert, ordering, and directory rebuild.
// ABOUTME: Each test opens a fresh database under t.TempDir.

package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexPutGetListDelete(t *testing.T) {
	idx := openTestIndex(t)

	older := Recording{
		RecordingID: "01OLD",
		RunID:       "run-a",
		Path:        "/data/run-a.jsonl",
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventCount:  10,
		Status:      StatusComplete,
	}
	newer := Recording{
		RecordingID: "01NEW",
		RunID:       "run-b",
		Path:        "/data/run-b.jsonl",
		StartedAt:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		EventCount:  4,
		Status:      StatusInterrupted,
	}
	if err := idx.Put(older); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Put(newer); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := idx.Get("01OLD")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.RunID != older.RunID || got.Path != older.Path || got.EventCount != older.EventCount ||
		got.Status != older.Status || !got.StartedAt.Equal(older.StartedAt) {
		t.Errorf("round-trip mismatch: %+v", got)
	}

	if _, found, err := idx.Get("missing"); err != nil || found {
		t.Errorf("expected absent row, found=%v err=%v", found, err)
	}

	recs, err := idx.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || recs[0].RecordingID != "01NEW" || recs[1].RecordingID != "01OLD" {
		t.Errorf("expected newest first, got %+v", recs)
	}

	if err := idx.Delete("01OLD"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if recs, _ := idx.List(); len(recs) != 1 {
		t.Errorf("expected 1 row after delete, got %d", len(recs))
	}
	if err := idx.Delete("missing"); err != nil {
		t.Errorf("deleting absent row: %v", err)
	}
}

func TestIndexPutUpserts(t *testing.T) {
	idx := openTestIndex(t)

	rec := Recording{
		RecordingID: "01A",
		RunID:       "run-a",
		Path:        "/data/run-a.jsonl",
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EventCount:  5,
		Status:      StatusInterrupted,
	}
	if err := idx.Put(rec); err != nil {
		t.Fatal(err)
	}
	rec.EventCount = 9
	rec.Status = StatusComplete
	if err := idx.Put(rec); err != nil {
		t.Fatal(err)
	}

	got, found, err := idx.Get("01A")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.EventCount != 9 || got.Status != StatusComplete {
		t.Errorf("expected upsert to win, got %+v", got)
	}
	if recs, _ := idx.List(); len(recs) != 1 {
		t.Errorf("expected a single row, got %d", len(recs))
	}
}

func TestIndexFile(t *testing.T) {
	idx := openTestIndex(t)
	dir := t.TempDir()

	content := `{"run_id":"run-f","recording_id":"01F","started_at":"2026-03-01T12:00:00Z"}
{"event":"timeline_event","data":{"id":"e1","type":"run_started","timestamp":"2026-03-01T12:00:00Z"},"at_ms":0}
{"event":"timeline_event","data":{"id":"e2","type":"run_finished","timestamp":"2026-03-01T12:05:00Z","status":"completed","success":true,"stages_completed":1,"total_duration_seconds":300},"at_ms":300000}
`
	path := filepath.Join(dir, "run-f.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := idx.IndexFile(path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if rec.RecordingID != "01F" || rec.RunID != "run-f" || rec.EventCount != 2 {
		t.Errorf("unexpected row from IndexFile: %+v", rec)
	}
	if rec.Status != StatusComplete {
		t.Errorf("expected complete status, got %q", rec.Status)
	}

	got, found, err := idx.Get("01F")
	if err != nil || !found {
		t.Fatalf("Get after IndexFile: found=%v err=%v", found, err)
	}
	if got.Path != path {
		t.Errorf("expected path %q, got %q", path, got.Path)
	}
}

func TestIndexFileUnloadable(t *testing.T) {
	idx := openTestIndex(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := idx.IndexFile(path); err == nil {
		t.Error("expected error for unloadable recording")
	}
	if recs, _ := idx.List(); len(recs) != 0 {
		t.Errorf("expected no rows after failed index, got %d", len(recs))
	}
}

func TestIndexRebuildFrom(t *testing.T) {
	idx := openTestIndex(t)
	dir := t.TempDir()

	complete := `{"run_id":"run-c","recording_id":"01C","started_at":"2026-03-01T12:00:00Z"}
{"event":"timeline_event","data":{"id":"e1","type":"progress_update","stage":"s1","timestamp":"2026-03-01T12:00:01Z","iteration":1,"max_iterations":2},"at_ms":0}
{"event":"timeline_event","data":{"id":"e2","type":"run_finished","timestamp":"2026-03-01T12:00:02Z","status":"completed","success":true,"stages_completed":1,"total_duration_seconds":2},"at_ms":100}
`
	partial := `{"run_id":"run-p","started_at":"2026-03-02T12:00:00Z"}
{"event":"timeline_event","data":{"id":"e1","type":"progress_update","stage":"s1","timestamp":"2026-03-02T12:00:01Z","iteration":1,"max_iterations":2},"at_ms":0}
{"event":"ping","data":{},"at_ms":50}
`
	files := map[string]string{
		"complete.jsonl": complete,
		"partial.jsonl":  partial,
		"garbage.jsonl":  "not json\n",
		"notes.txt":      "not a recording",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	stale := Recording{RecordingID: "stale", RunID: "gone", Path: "/dev/null", StartedAt: time.Now(), Status: StatusComplete}
	if err := idx.Put(stale); err != nil {
		t.Fatal(err)
	}

	n, err := idx.RebuildFrom(dir)
	if err != nil {
		t.Fatalf("RebuildFrom: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 recordings indexed, got %d", n)
	}

	if _, found, _ := idx.Get("stale"); found {
		t.Error("expected stale row cleared by rebuild")
	}

	got, found, err := idx.Get("01C")
	if err != nil || !found {
		t.Fatalf("Get 01C: found=%v err=%v", found, err)
	}
	if got.Status != StatusComplete || got.EventCount != 2 || got.RunID != "run-c" {
		t.Errorf("unexpected complete recording: %+v", got)
	}

	// The header without a recording id falls back to the file name.
	got, found, err = idx.Get("partial")
	if err != nil || !found {
		t.Fatalf("Get partial: found=%v err=%v", found, err)
	}
	if got.Status != StatusInterrupted || got.EventCount != 2 || got.RunID != "run-p" {
		t.Errorf("unexpected partial recording: %+v", got)
	}
}
