// ABOUTME: Derives the canonical stage order of a run from its timeline.
// ABOUTME: Stages appear in order of first mention; events without a stage are skipped.

package runstate

// StageOrder returns the distinct stage ids seen in the timeline, ordered
// by first appearance. Events without a stage do not contribute. The
// result is the canonical ordering for stacked tree zones and stage lists.
func StageOrder(events []TimelineEvent) []string {
	seen := make(map[string]struct{}, len(events))
	var order []string
	for _, e := range events {
		stage := e.Meta().Stage
		if stage == "" {
			continue
		}
		if _, ok := seen[stage]; ok {
			continue
		}
		seen[stage] = struct{}{}
		order = append(order, stage)
	}
	return order
}
