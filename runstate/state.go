// ABOUTME: Canonical run state reported by the server: scalar fields plus the append-only timeline.
// ABOUTME: Delta is the partial-update shape; it has no timeline field on purpose.

package runstate

import (
	"encoding/json"
	"fmt"
)

// Status is the server-reported lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the run has reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// RunState is the canonical state of one run. The timeline is append-only by
// event id, ordered by arrival (not necessarily by timestamp).
type RunState struct {
	RunID        string          `json:"run_id"`
	Status       Status          `json:"status"`
	CurrentStage string          `json:"current_stage,omitempty"`
	CurrentFocus string          `json:"current_focus,omitempty"`
	Progress     *float64        `json:"progress,omitempty"`
	Timeline     []TimelineEvent `json:"timeline"`
}

// UnmarshalJSON decodes a snapshot payload, routing each timeline entry
// through the tagged-union decoder.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var raw struct {
		RunID        string            `json:"run_id"`
		Status       Status            `json:"status"`
		CurrentStage string            `json:"current_stage"`
		CurrentFocus string            `json:"current_focus"`
		Progress     *float64          `json:"progress"`
		Timeline     []json.RawMessage `json:"timeline"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode run state: %w", err)
	}

	s.RunID = raw.RunID
	s.Status = raw.Status
	s.CurrentStage = raw.CurrentStage
	s.CurrentFocus = raw.CurrentFocus
	s.Progress = raw.Progress
	s.Timeline = make([]TimelineEvent, 0, len(raw.Timeline))
	for i, entry := range raw.Timeline {
		evt, err := DecodeEvent(entry)
		if err != nil {
			return fmt.Errorf("timeline entry %d: %w", i, err)
		}
		s.Timeline = append(s.Timeline, evt)
	}
	return nil
}

// Delta is a partial update to a run's scalar fields. Absent fields leave
// the current value untouched. The timeline cannot be expressed here:
// timeline mutation happens exclusively through event appends.
type Delta struct {
	Status       *Status  `json:"status,omitempty"`
	CurrentStage *string  `json:"current_stage,omitempty"`
	CurrentFocus *string  `json:"current_focus,omitempty"`
	Progress     *float64 `json:"progress,omitempty"`
}

// Empty reports whether the delta would change nothing.
func (d Delta) Empty() bool {
	return d.Status == nil && d.CurrentStage == nil && d.CurrentFocus == nil && d.Progress == nil
}
