// ABOUTME: Script model for the replay server: a run header plus timed wire frames and tree releases.
// ABOUTME: Loads from JSONL recordings; the first line is the run header, every later line one frame.

package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/2389-research/watchtower/treeviz"
)

// Wire event names the player reduces into run state. Any other event name
// passes through to subscribers untouched.
const (
	EventSnapshot = "state_snapshot"
	EventTimeline = "timeline_event"
	EventDelta    = "state_delta"
	EventPing     = "ping"
)

// RunInfo identifies the run a script plays back.
type RunInfo struct {
	RunID       string    `json:"run_id"`
	RecordingID string    `json:"recording_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// ScriptFrame is one wire frame scheduled At a fixed offset from run start.
type ScriptFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    time.Duration   `json:"-"`
}

// TreeSnapshot schedules the release of one stage-tree version. Trees are
// pull-only: releasing one never emits a frame.
type TreeSnapshot struct {
	At   time.Duration
	Tree treeviz.StageTree
}

// Script is everything the replay server serves for one run.
type Script struct {
	Run    RunInfo
	Frames []ScriptFrame
	Trees  []TreeSnapshot
	Report string
}

// scriptLine is the JSONL shape of one recorded frame.
type scriptLine struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AtMS  int64           `json:"at_ms"`
}

// LoadScript reads a JSONL recording: a RunInfo header line followed by one
// frame per line. Blank lines are skipped. Recordings carry no trees or
// report; those stay empty.
func LoadScript(r io.Reader) (*Script, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	s := &Script{}
	lineNo := 0
	sawHeader := false
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		if !sawHeader {
			if err := json.Unmarshal(line, &s.Run); err != nil {
				return nil, fmt.Errorf("script line %d: decode run header: %w", lineNo, err)
			}
			if s.Run.RunID == "" {
				return nil, fmt.Errorf("script line %d: run header missing run_id", lineNo)
			}
			sawHeader = true
			continue
		}

		var raw scriptLine
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("script line %d: decode frame: %w", lineNo, err)
		}
		if raw.Event == "" {
			return nil, fmt.Errorf("script line %d: frame missing event", lineNo)
		}
		s.Frames = append(s.Frames, ScriptFrame{
			Event: raw.Event,
			Data:  raw.Data,
			At:    time.Duration(raw.AtMS) * time.Millisecond,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("script has no run header")
	}
	return s, nil
}

// LoadScriptFile loads a script from a recording file on disk.
func LoadScriptFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	s, err := LoadScript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
