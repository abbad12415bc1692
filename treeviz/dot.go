// ABOUTME: Graphviz DOT export of a merged tree, one cluster per stage zone.
// ABOUTME: Nodes are pinned at their merged coordinates; bridge edges render dashed.

package treeviz

import (
	"fmt"
	"io"
	"strings"
)

const (
	dotBestFill = "#90EE90"
	dotSeedFill = "#ADD8E6"
)

// WriteDOT renders the merged tree as a Graphviz digraph suitable for
// neato. Node positions come from the merged layout with Y flipped into
// Graphviz's upward axis, so the rendering matches the on-screen stacking.
func WriteDOT(w io.Writer, m *MergedTree) error {
	if m == nil {
		return fmt.Errorf("write dot: nil merged tree")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", quoteDOT(m.StageID))
	b.WriteString("  node [shape=circle, style=filled, fillcolor=\"#FFFFFF\"]\n")

	for zi, zone := range m.Zones {
		fmt.Fprintf(&b, "\n  subgraph cluster_%d {\n", zi)
		fmt.Fprintf(&b, "    label=%s\n", quoteDOT(zone.StageID))
		for i, pt := range m.Viz.Layout {
			if i >= len(m.StageIDs) || m.StageIDs[i] != zone.StageID {
				continue
			}
			fmt.Fprintf(&b, "    n%d [label=%s, pos=\"%.2f,%.2f!\"%s]\n",
				i, quoteDOT(nodeLabel(m, i)), pt.X*10, (1-pt.Y)*10, nodeFill(m, i))
		}
		b.WriteString("  }\n")
	}

	b.WriteString("\n")
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			fmt.Fprintf(&b, "  n%d -> n%d [style=dashed]\n", e.Parent, e.Child)
		} else {
			fmt.Fprintf(&b, "  n%d -> n%d\n", e.Parent, e.Child)
		}
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func nodeLabel(m *MergedTree, i int) string {
	label := fmt.Sprintf("%d", i)
	if i < len(m.OriginalNodeIDs) {
		label = fmt.Sprintf("%d", m.OriginalNodeIDs[i])
	}
	if metric := m.Viz.MetricAt(i); metric != nil {
		label = fmt.Sprintf("%s: %.3f", label, *metric)
	}
	return label
}

func nodeFill(m *MergedTree, i int) string {
	switch {
	case m.Viz.BestAt(i):
		return fmt.Sprintf(", fillcolor=%s", quoteDOT(dotBestFill))
	case m.Viz.SeedAt(i):
		return fmt.Sprintf(", fillcolor=%s", quoteDOT(dotSeedFill))
	default:
		return ""
	}
}

// quoteDOT quotes a DOT identifier or attribute value when it is not a
// bare-safe word, escaping embedded quotes, backslashes, and newlines.
func quoteDOT(val string) string {
	if val == "" {
		return `""`
	}
	bare := true
	for _, r := range val {
		if !isDOTWord(r) {
			bare = false
			break
		}
	}
	if bare {
		return val
	}

	var b strings.Builder
	b.WriteByte('"')
	for _, r := range val {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isDOTWord(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
