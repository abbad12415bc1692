// ABOUTME: Pure grouping pass that collapses runs of near-identical timeline events into display items.
// ABOUTME: Nothing is dropped: flattening the output reproduces the input exactly.

package runstate

import "time"

// DefaultGroupWindow is the largest timestamp gap between consecutive events
// that still lets them share a group.
const DefaultGroupWindow = 10 * time.Minute

// GroupingConfig tunes the grouping pass.
type GroupingConfig struct {
	Window time.Duration
}

// DefaultGroupingConfig returns the standard tuning.
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{Window: DefaultGroupWindow}
}

// DisplayItem is one row of the rendered timeline: a single event, or an
// ordered group of similar events collapsed into one collapsible row.
type DisplayItem struct {
	Events []TimelineEvent
}

// Latest returns the most recent member, which represents the item when
// collapsed.
func (it DisplayItem) Latest() TimelineEvent {
	return it.Events[len(it.Events)-1]
}

// Count returns the number of member events.
func (it DisplayItem) Count() int {
	return len(it.Events)
}

// Grouped reports whether the item holds more than one event.
func (it DisplayItem) Grouped() bool {
	return len(it.Events) > 1
}

// GroupTimeline scans events in order, folding each into the open group when
// the join rules allow, otherwise starting a new item. Input order is
// preserved inside and across items.
func GroupTimeline(events []TimelineEvent, cfg GroupingConfig) []DisplayItem {
	if cfg.Window <= 0 {
		cfg.Window = DefaultGroupWindow
	}
	var items []DisplayItem
	for _, e := range events {
		if len(items) > 0 {
			open := &items[len(items)-1]
			if canJoin(open.Latest(), e, cfg.Window) {
				open.Events = append(open.Events, e)
				continue
			}
		}
		items = append(items, DisplayItem{Events: []TimelineEvent{e}})
	}
	return items
}

// canJoin decides whether next may extend a group whose last member is prev.
// All three gates must pass: same kind and stage, close enough in time, and
// the kind-specific rule.
func canJoin(prev, next TimelineEvent, window time.Duration) bool {
	if prev.Kind() != next.Kind() {
		return false
	}
	pm, nm := prev.Meta(), next.Meta()
	if pm.Stage != nm.Stage {
		return false
	}
	if nm.Timestamp.Sub(pm.Timestamp) > window {
		return false
	}

	switch next.Kind() {
	case KindProgressUpdate, KindNodeExecutionStarted, KindNodeExecutionCompleted, KindPaperGenerationStep:
		return true
	case KindNodeResult:
		p, pok := prev.(NodeResult)
		n, nok := next.(NodeResult)
		return pok && nok && p.Outcome == n.Outcome
	default:
		// Milestones (run/stage boundaries) and unknown kinds always stand
		// alone.
		return false
	}
}
