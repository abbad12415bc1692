// ABOUTME: Closed tagged union of timeline event variants keyed by the wire "type" field.
// ABOUTME: Unknown variants decode to GenericEvent and round-trip their raw JSON unchanged.

package runstate

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies a timeline event variant by its wire name.
type EventKind string

const (
	KindRunStarted             EventKind = "run_started"
	KindStageStarted           EventKind = "stage_started"
	KindStageCompleted         EventKind = "stage_completed"
	KindProgressUpdate         EventKind = "progress_update"
	KindNodeExecutionStarted   EventKind = "node_execution_started"
	KindNodeExecutionCompleted EventKind = "node_execution_completed"
	KindNodeResult             EventKind = "node_result"
	KindPaperGenerationStep    EventKind = "paper_generation_step"
	KindRunFinished            EventKind = "run_finished"
)

// KnownKinds returns every variant this package decodes to a concrete type.
func KnownKinds() []EventKind {
	return []EventKind{
		KindRunStarted,
		KindStageStarted,
		KindStageCompleted,
		KindProgressUpdate,
		KindNodeExecutionStarted,
		KindNodeExecutionCompleted,
		KindNodeResult,
		KindPaperGenerationStep,
		KindRunFinished,
	}
}

// EventMeta carries the fields every timeline event has: a run-unique id,
// the owning stage, the server timestamp, and optional display hints.
type EventMeta struct {
	ID        string    `json:"id"`
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Headline  string    `json:"headline,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
}

// TimelineEvent is one immutable fact appended to a run's history. The set
// of variants is closed: only this package can add one, so a type switch
// over the concrete types covers every case the decoder can produce.
type TimelineEvent interface {
	Meta() EventMeta
	Kind() EventKind
	timelineEvent()
}

// RunStarted marks the beginning of a run.
type RunStarted struct{ EventMeta }

// StageStarted marks the beginning of one pipeline stage.
type StageStarted struct{ EventMeta }

// StageCompleted marks the end of one pipeline stage.
type StageCompleted struct{ EventMeta }

// ProgressUpdate is one tick of the worker's iteration counter.
type ProgressUpdate struct {
	EventMeta
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"max_iterations"`
}

// NodeExecutionStarted reports the worker picking up one search-tree node.
type NodeExecutionStarted struct{ EventMeta }

// NodeExecutionCompleted reports the worker finishing one search-tree node.
type NodeExecutionCompleted struct{ EventMeta }

// NodeResult reports the evaluated outcome of one search-tree node.
type NodeResult struct {
	EventMeta
	Outcome      string `json:"outcome"`
	Summary      string `json:"summary,omitempty"`
	ErrorSummary string `json:"error_summary,omitempty"`
}

// PaperGenerationStep reports one step of the final write-up phase.
type PaperGenerationStep struct {
	EventMeta
	Step string `json:"step,omitempty"`
}

// RunFinished marks the end of a run with its terminal status.
type RunFinished struct {
	EventMeta
	Status               Status  `json:"status"`
	Success              bool    `json:"success"`
	StagesCompleted      int     `json:"stages_completed"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// GenericEvent preserves a timeline event whose type this client does not
// know. Raw holds the original JSON so nothing the server sent is lost.
type GenericEvent struct {
	EventMeta
	WireType string
	Raw      json.RawMessage
}

func (e RunStarted) Meta() EventMeta             { return e.EventMeta }
func (e StageStarted) Meta() EventMeta           { return e.EventMeta }
func (e StageCompleted) Meta() EventMeta         { return e.EventMeta }
func (e ProgressUpdate) Meta() EventMeta         { return e.EventMeta }
func (e NodeExecutionStarted) Meta() EventMeta   { return e.EventMeta }
func (e NodeExecutionCompleted) Meta() EventMeta { return e.EventMeta }
func (e NodeResult) Meta() EventMeta             { return e.EventMeta }
func (e PaperGenerationStep) Meta() EventMeta    { return e.EventMeta }
func (e RunFinished) Meta() EventMeta            { return e.EventMeta }
func (e GenericEvent) Meta() EventMeta           { return e.EventMeta }

func (RunStarted) Kind() EventKind             { return KindRunStarted }
func (StageStarted) Kind() EventKind           { return KindStageStarted }
func (StageCompleted) Kind() EventKind         { return KindStageCompleted }
func (ProgressUpdate) Kind() EventKind         { return KindProgressUpdate }
func (NodeExecutionStarted) Kind() EventKind   { return KindNodeExecutionStarted }
func (NodeExecutionCompleted) Kind() EventKind { return KindNodeExecutionCompleted }
func (NodeResult) Kind() EventKind             { return KindNodeResult }
func (PaperGenerationStep) Kind() EventKind    { return KindPaperGenerationStep }
func (RunFinished) Kind() EventKind            { return KindRunFinished }
func (e GenericEvent) Kind() EventKind         { return EventKind(e.WireType) }

func (RunStarted) timelineEvent()             {}
func (StageStarted) timelineEvent()           {}
func (StageCompleted) timelineEvent()         {}
func (ProgressUpdate) timelineEvent()         {}
func (NodeExecutionStarted) timelineEvent()   {}
func (NodeExecutionCompleted) timelineEvent() {}
func (NodeResult) timelineEvent()             {}
func (PaperGenerationStep) timelineEvent()    {}
func (RunFinished) timelineEvent()            {}
func (GenericEvent) timelineEvent()           {}

// wireEvent is the superset of fields across all known variants, used for
// both decoding and encoding the wire shape.
type wireEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Stage     string    `json:"stage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Headline  string    `json:"headline,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`

	Iteration     *int `json:"iteration,omitempty"`
	MaxIterations *int `json:"max_iterations,omitempty"`

	Outcome      string `json:"outcome,omitempty"`
	Summary      string `json:"summary,omitempty"`
	ErrorSummary string `json:"error_summary,omitempty"`

	Step string `json:"step,omitempty"`

	Status               string   `json:"status,omitempty"`
	Success              *bool    `json:"success,omitempty"`
	StagesCompleted      *int     `json:"stages_completed,omitempty"`
	TotalDurationSeconds *float64 `json:"total_duration_seconds,omitempty"`
}

// DecodeEvent decodes one timeline event payload. Unknown types are not an
// error: they decode to GenericEvent with the raw payload preserved. A
// missing id is an error because idempotent append depends on it.
func DecodeEvent(data []byte) (TimelineEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode timeline event: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("timeline event missing id")
	}

	meta := EventMeta{
		ID:        w.ID,
		Stage:     w.Stage,
		Timestamp: w.Timestamp,
		Headline:  w.Headline,
		NodeID:    w.NodeID,
	}

	switch EventKind(w.Type) {
	case KindRunStarted:
		return RunStarted{meta}, nil
	case KindStageStarted:
		return StageStarted{meta}, nil
	case KindStageCompleted:
		return StageCompleted{meta}, nil
	case KindProgressUpdate:
		return ProgressUpdate{
			EventMeta:     meta,
			Iteration:     intValue(w.Iteration),
			MaxIterations: intValue(w.MaxIterations),
		}, nil
	case KindNodeExecutionStarted:
		return NodeExecutionStarted{meta}, nil
	case KindNodeExecutionCompleted:
		return NodeExecutionCompleted{meta}, nil
	case KindNodeResult:
		return NodeResult{
			EventMeta:    meta,
			Outcome:      w.Outcome,
			Summary:      w.Summary,
			ErrorSummary: w.ErrorSummary,
		}, nil
	case KindPaperGenerationStep:
		return PaperGenerationStep{EventMeta: meta, Step: w.Step}, nil
	case KindRunFinished:
		return RunFinished{
			EventMeta:            meta,
			Status:               Status(w.Status),
			Success:              boolValue(w.Success),
			StagesCompleted:      intValue(w.StagesCompleted),
			TotalDurationSeconds: floatValue(w.TotalDurationSeconds),
		}, nil
	default:
		return GenericEvent{
			EventMeta: meta,
			WireType:  w.Type,
			Raw:       append(json.RawMessage(nil), data...),
		}, nil
	}
}

func (e RunStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(KindRunStarted, e.EventMeta, nil)
}

func (e StageStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(KindStageStarted, e.EventMeta, nil)
}

func (e StageCompleted) MarshalJSON() ([]byte, error) {
	return marshalWire(KindStageCompleted, e.EventMeta, nil)
}

func (e ProgressUpdate) MarshalJSON() ([]byte, error) {
	return marshalWire(KindProgressUpdate, e.EventMeta, func(w *wireEvent) {
		w.Iteration = &e.Iteration
		w.MaxIterations = &e.MaxIterations
	})
}

func (e NodeExecutionStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(KindNodeExecutionStarted, e.EventMeta, nil)
}

func (e NodeExecutionCompleted) MarshalJSON() ([]byte, error) {
	return marshalWire(KindNodeExecutionCompleted, e.EventMeta, nil)
}

func (e NodeResult) MarshalJSON() ([]byte, error) {
	return marshalWire(KindNodeResult, e.EventMeta, func(w *wireEvent) {
		w.Outcome = e.Outcome
		w.Summary = e.Summary
		w.ErrorSummary = e.ErrorSummary
	})
}

func (e PaperGenerationStep) MarshalJSON() ([]byte, error) {
	return marshalWire(KindPaperGenerationStep, e.EventMeta, func(w *wireEvent) {
		w.Step = e.Step
	})
}

func (e RunFinished) MarshalJSON() ([]byte, error) {
	return marshalWire(KindRunFinished, e.EventMeta, func(w *wireEvent) {
		w.Status = string(e.Status)
		w.Success = &e.Success
		w.StagesCompleted = &e.StagesCompleted
		w.TotalDurationSeconds = &e.TotalDurationSeconds
	})
}

// MarshalJSON emits the original payload unchanged when present.
func (e GenericEvent) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return append([]byte(nil), e.Raw...), nil
	}
	return marshalWire(EventKind(e.WireType), e.EventMeta, nil)
}

func marshalWire(kind EventKind, meta EventMeta, fill func(*wireEvent)) ([]byte, error) {
	w := wireEvent{
		Type:      string(kind),
		ID:        meta.ID,
		Stage:     meta.Stage,
		Timestamp: meta.Timestamp,
		Headline:  meta.Headline,
		NodeID:    meta.NodeID,
	}
	if fill != nil {
		fill(&w)
	}
	return json.Marshal(w)
}

// Describe renders one event as a short human-readable line. The headline
// wins when the server provided one.
func Describe(e TimelineEvent) string {
	m := e.Meta()
	if m.Headline != "" {
		return m.Headline
	}
	switch v := e.(type) {
	case RunStarted:
		return "run started"
	case StageStarted:
		return fmt.Sprintf("stage %s started", m.Stage)
	case StageCompleted:
		return fmt.Sprintf("stage %s completed", m.Stage)
	case ProgressUpdate:
		if v.MaxIterations > 0 {
			return fmt.Sprintf("iteration %d/%d", v.Iteration, v.MaxIterations)
		}
		return fmt.Sprintf("iteration %d", v.Iteration)
	case NodeExecutionStarted:
		return fmt.Sprintf("executing node %s", m.NodeID)
	case NodeExecutionCompleted:
		return fmt.Sprintf("node %s finished", m.NodeID)
	case NodeResult:
		if v.ErrorSummary != "" {
			return fmt.Sprintf("node %s: %s (%s)", m.NodeID, v.Outcome, v.ErrorSummary)
		}
		if v.Summary != "" {
			return fmt.Sprintf("node %s: %s (%s)", m.NodeID, v.Outcome, v.Summary)
		}
		return fmt.Sprintf("node %s: %s", m.NodeID, v.Outcome)
	case PaperGenerationStep:
		if v.Step != "" {
			return fmt.Sprintf("paper generation: %s", v.Step)
		}
		return "paper generation step"
	case RunFinished:
		return fmt.Sprintf("run finished: %s (%d stages, %.0fs)", v.Status, v.StagesCompleted, v.TotalDurationSeconds)
	case GenericEvent:
		return fmt.Sprintf("event %s", v.WireType)
	}
	return string(e.Kind())
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func boolValue(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}

func floatValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
