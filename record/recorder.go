// ABOUTME: Recorder captures a run's event stream to a JSONL file loadable by the replay server.
// ABOUTME: One header line, then one line per frame with its offset from record start.

package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/2389-research/watchtower/api"
	"github.com/2389-research/watchtower/replay"
	"github.com/2389-research/watchtower/wire"
)

// RecorderConfig holds the dependencies for a Recorder.
type RecorderConfig struct {
	API  *api.Client
	Logf func(string, ...any)
}

// Recorder copies a live event stream into a recording. It bootstraps like
// any other client: the first captured frame is a state_snapshot of the run
// at record start, so a recording made mid-run still replays to full state.
type Recorder struct {
	api  *api.Client
	logf func(string, ...any)
}

// Info describes one finished (or stopped) recording.
type Info struct {
	RecordingID string
	RunID       string
	StartedAt   time.Time
	FrameCount  int
}

// recordedFrame is the JSONL shape of one captured frame. It matches what
// replay.LoadScript reads back.
type recordedFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AtMS  int64           `json:"at_ms"`
}

// NewRecorder creates a Recorder using the given API client.
func NewRecorder(cfg RecorderConfig) *Recorder {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	return &Recorder{api: cfg.API, logf: logf}
}

// Record captures runID's stream into w until the server closes the stream
// or ctx is cancelled; cancellation is the normal way to stop a capture and
// is not an error. Every line is written with its own Write call, so a file
// being recorded can be tailed. Returns what was captured either way.
func (r *Recorder) Record(ctx context.Context, runID string, w io.Writer) (Info, error) {
	info := Info{
		RecordingID: ulid.Make().String(),
		RunID:       runID,
		StartedAt:   time.Now().UTC(),
	}

	state, err := r.api.FetchRunState(ctx, runID)
	if err != nil {
		return info, fmt.Errorf("bootstrap: %w", err)
	}
	snapshot, err := json.Marshal(state)
	if err != nil {
		return info, fmt.Errorf("encode snapshot: %w", err)
	}

	enc := json.NewEncoder(w)
	header := replay.RunInfo{
		RunID:       runID,
		RecordingID: info.RecordingID,
		StartedAt:   info.StartedAt,
	}
	if err := enc.Encode(header); err != nil {
		return info, fmt.Errorf("write header: %w", err)
	}
	if err := enc.Encode(recordedFrame{Event: replay.EventSnapshot, Data: snapshot}); err != nil {
		return info, fmt.Errorf("write snapshot: %w", err)
	}
	info.FrameCount++

	body, err := r.api.OpenEventStream(ctx, runID)
	if err != nil {
		return info, fmt.Errorf("open stream: %w", err)
	}
	defer body.Close()

	r.logf("record: capturing run=%s recording=%s", runID, info.RecordingID)
	start := time.Now()
	reader := wire.NewReader(body)
	for {
		f, err := reader.NextFrame()
		if errors.Is(err, io.EOF) {
			r.logf("record: stream closed run=%s frames=%d", runID, info.FrameCount)
			return info, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				r.logf("record: stopped run=%s frames=%d", runID, info.FrameCount)
				return info, nil
			}
			return info, fmt.Errorf("read stream: %w", err)
		}

		if !json.Valid([]byte(f.Data)) {
			r.logf("record: skipping frame with non-json data event=%s", f.Event)
			continue
		}
		line := recordedFrame{
			Event: f.Event,
			Data:  json.RawMessage(f.Data),
			AtMS:  time.Since(start).Milliseconds(),
		}
		if err := enc.Encode(line); err != nil {
			return info, fmt.Errorf("write frame: %w", err)
		}
		info.FrameCount++
	}
}

// RecordToFile records into a freshly created file at path. When nothing
// beyond the header could be captured the file is removed again.
func (r *Recorder) RecordToFile(ctx context.Context, runID, path string) (Info, error) {
	f, err := os.Create(path)
	if err != nil {
		return Info{RunID: runID}, fmt.Errorf("create recording: %w", err)
	}
	info, recErr := r.Record(ctx, runID, f)
	closeErr := f.Close()
	if recErr != nil {
		if info.FrameCount == 0 {
			_ = os.Remove(path)
		}
		return info, recErr
	}
	return info, closeErr
}
