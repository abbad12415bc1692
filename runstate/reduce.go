// ABOUTME: The three pure reducers every run-state mutation goes through.
// ABOUTME: Each is a total function of (previous state, payload); published states are never mutated in place.

package runstate

// ApplySnapshot replaces the whole state. The previous state is irrelevant
// beyond the reducer signature. A nil timeline is normalized to empty so
// consumers never see the distinction.
func ApplySnapshot(_ *RunState, next RunState) *RunState {
	s := next
	if s.Timeline == nil {
		s.Timeline = []TimelineEvent{}
	}
	return &s
}

// ApplyDelta shallow-merges the delta's set fields into a copy of prev. The
// timeline is carried over untouched. A delta arriving before the first
// snapshot is dropped: prev is returned unchanged (still nil).
func ApplyDelta(prev *RunState, d Delta) *RunState {
	if prev == nil {
		return prev
	}
	next := *prev
	if d.Status != nil {
		next.Status = *d.Status
	}
	if d.CurrentStage != nil {
		next.CurrentStage = *d.CurrentStage
	}
	if d.CurrentFocus != nil {
		next.CurrentFocus = *d.CurrentFocus
	}
	if d.Progress != nil {
		next.Progress = d.Progress
	}
	return &next
}

// AppendEvent appends e to the timeline unless an event with the same id is
// already present, in which case prev is returned unchanged. Append order is
// arrival order; entries are never removed or reordered. Events arriving
// before the first snapshot are dropped.
func AppendEvent(prev *RunState, e TimelineEvent) *RunState {
	if prev == nil {
		return prev
	}
	id := e.Meta().ID
	for _, existing := range prev.Timeline {
		if existing.Meta().ID == id {
			return prev
		}
	}
	next := *prev
	// The full slice expression forces the append to allocate, so the
	// timeline backing array of a published state is never written.
	next.Timeline = append(prev.Timeline[:len(prev.Timeline):len(prev.Timeline)], e)
	return &next
}
