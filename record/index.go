// ABOUTME: SQLite-backed catalog of recordings for fast listing without re-reading JSONL files.
// ABOUTME: Provides upsert, get, list, delete, and rebuild-from-directory operations.

package record

import (
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/watchtower/replay"
	"github.com/2389-research/watchtower/runstate"
)

// Recording statuses. A capture that saw the run finish is complete;
// everything else was cut off mid-run.
const (
	StatusComplete    = "complete"
	StatusInterrupted = "interrupted"
)

// Recording is one catalog row.
type Recording struct {
	RecordingID string
	RunID       string
	Path        string
	StartedAt   time.Time
	EventCount  int
	Status      string
}

// Index is a SQLite-backed catalog of recordings. It is always rebuildable
// from the JSONL files on disk and serves as a queryable cache, not the
// source of truth.
type Index struct {
	db *sql.DB
}

// OpenIndex opens or creates the recordings index database at the given
// path and ensures the schema is up to date.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS recordings (
			recording_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			event_count INTEGER NOT NULL,
			status TEXT NOT NULL
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Put upserts a recording row.
func (idx *Index) Put(rec Recording) error {
	_, err := idx.db.Exec(
		`INSERT INTO recordings (recording_id, run_id, path, started_at, event_count, status)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(recording_id) DO UPDATE SET
			run_id = excluded.run_id,
			path = excluded.path,
			started_at = excluded.started_at,
			event_count = excluded.event_count,
			status = excluded.status`,
		rec.RecordingID,
		rec.RunID,
		rec.Path,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.EventCount,
		rec.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert recording: %w", err)
	}
	return nil
}

// Get returns the recording with the given id. found is false when absent.
func (idx *Index) Get(recordingID string) (Recording, bool, error) {
	row := idx.db.QueryRow(
		`SELECT recording_id, run_id, path, started_at, event_count, status
		 FROM recordings WHERE recording_id = ?`,
		recordingID)
	rec, err := scanRecording(row.Scan)
	if err == sql.ErrNoRows {
		return Recording{}, false, nil
	}
	if err != nil {
		return Recording{}, false, fmt.Errorf("query recording: %w", err)
	}
	return rec, true, nil
}

// List returns all recordings, newest first.
func (idx *Index) List() ([]Recording, error) {
	rows, err := idx.db.Query(
		`SELECT recording_id, run_id, path, started_at, event_count, status
		 FROM recordings ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []Recording
	for rows.Next() {
		rec, err := scanRecording(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan recording row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a recording row by id. Deleting an absent row is a no-op.
func (idx *Index) Delete(recordingID string) error {
	_, err := idx.db.Exec("DELETE FROM recordings WHERE recording_id = ?", recordingID)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	return nil
}

// IndexFile loads the recording at path and upserts its catalog row. The
// row's id comes from the recording header, falling back to the file name
// for recordings made before ids were written.
func (idx *Index) IndexFile(path string) (Recording, error) {
	rec, err := loadRecording(path)
	if err != nil {
		return Recording{}, err
	}
	if err := idx.Put(rec); err != nil {
		return Recording{}, err
	}
	return rec, nil
}

// RebuildFrom clears the catalog and reindexes every *.jsonl recording in
// dir. Files that do not load as scripts are skipped with a log line.
// Returns the number of recordings indexed.
func (idx *Index) RebuildFrom(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}

	if _, err := idx.db.Exec("DELETE FROM recordings"); err != nil {
		return 0, fmt.Errorf("clear recordings: %w", err)
	}

	count := 0
	for _, p := range paths {
		rec, err := loadRecording(p)
		if err != nil {
			log.Printf("record: skipping unloadable recording path=%s err=%v", p, err)
			continue
		}
		if err := idx.Put(rec); err != nil {
			return count, fmt.Errorf("index %s: %w", p, err)
		}
		count++
	}
	return count, nil
}

// loadRecording reads a recording file into its catalog row shape.
func loadRecording(path string) (Recording, error) {
	script, err := replay.LoadScriptFile(path)
	if err != nil {
		return Recording{}, err
	}
	rec := Recording{
		RecordingID: script.Run.RecordingID,
		RunID:       script.Run.RunID,
		Path:        path,
		StartedAt:   script.Run.StartedAt,
		EventCount:  len(script.Frames),
		Status:      scriptStatus(script),
	}
	if rec.RecordingID == "" {
		rec.RecordingID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	}
	return rec, nil
}

// scriptStatus reports whether a recording saw the run finish: the last
// timeline event must be run_finished.
func scriptStatus(s *replay.Script) string {
	for i := len(s.Frames) - 1; i >= 0; i-- {
		if s.Frames[i].Event != replay.EventTimeline {
			continue
		}
		evt, err := runstate.DecodeEvent(s.Frames[i].Data)
		if err == nil && evt.Kind() == runstate.KindRunFinished {
			return StatusComplete
		}
		return StatusInterrupted
	}
	return StatusInterrupted
}

func scanRecording(scan func(...any) error) (Recording, error) {
	var rec Recording
	var startedAt string
	if err := scan(&rec.RecordingID, &rec.RunID, &rec.Path, &startedAt, &rec.EventCount, &rec.Status); err != nil {
		return Recording{}, err
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return Recording{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	rec.StartedAt = t
	return rec, nil
}
