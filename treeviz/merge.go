// ABOUTME: Merge engine that stitches per-stage tree plots into one diagram with vertical zones.
// ABOUTME: Rescales Y per stage, re-indexes edges, pads missing arrays, and bridges stage winners to successors.

package treeviz

const (
	// Padding fraction trimmed from each zone's bottom so stages never
	// visually touch. Tighter when many stages share the height.
	zonePaddingFewStages  = 0.10
	zonePaddingManyStages = 0.08
	manyStagesThreshold   = 4
)

func zonePadding(n int) float64 {
	if n >= manyStagesThreshold {
		return zonePaddingManyStages
	}
	return zonePaddingFewStages
}

// Merge combines per-stage trees, in the given canonical order, into one
// MergedTree. Stages with an empty layout are skipped and consume no zone.
// Returns nil when nothing remains to merge.
func Merge(stages []StageTree) *MergedTree {
	kept := make([]StageTree, 0, len(stages))
	for _, st := range stages {
		if len(st.Viz.Layout) == 0 {
			continue
		}
		kept = append(kept, st)
	}
	if len(kept) == 0 {
		return nil
	}

	n := len(kept)
	pad := zonePadding(n)
	zoneHeight := 1.0 / float64(n)

	merged := &MergedTree{StageID: FullTreeID}
	offsets := make([]int, n)
	offset := 0

	for i, st := range kept {
		offsets[i] = offset
		count := st.Viz.NodeCount()

		top := float64(i) * zoneHeight
		bottom := top + zoneHeight*(1.0-pad)

		yMin, yMax := yRange(st.Viz.Layout)
		span := yMax - yMin
		for _, p := range st.Viz.Layout {
			// A stage whose nodes share one Y lands on the zone's center.
			t := 0.5
			if span > 0 {
				t = (p.Y - yMin) / span
			}
			merged.Viz.Layout = append(merged.Viz.Layout, Point{
				X: p.X,
				Y: top + t*(bottom-top),
			})
		}

		for _, e := range st.Viz.Edges {
			merged.Viz.Edges = append(merged.Viz.Edges, Edge{
				Parent: e.Parent + offset,
				Child:  e.Child + offset,
			})
		}

		merged.Viz.Code = appendStrings(merged.Viz.Code, st.Viz.Code, count)
		merged.Viz.Plan = appendStrings(merged.Viz.Plan, st.Viz.Plan, count)
		merged.Viz.Analysis = appendStrings(merged.Viz.Analysis, st.Viz.Analysis, count)
		merged.Viz.ExcType = appendStrings(merged.Viz.ExcType, st.Viz.ExcType, count)
		merged.Viz.AblationName = appendStrings(merged.Viz.AblationName, st.Viz.AblationName, count)
		merged.Viz.HyperparamName = appendStrings(merged.Viz.HyperparamName, st.Viz.HyperparamName, count)
		merged.Viz.Metrics = appendMetrics(merged.Viz.Metrics, st.Viz.Metrics, count)
		merged.Viz.IsBestNode = appendBools(merged.Viz.IsBestNode, st.Viz.IsBestNode, count)
		merged.Viz.IsSeedNode = appendBools(merged.Viz.IsSeedNode, st.Viz.IsSeedNode, count)

		for j := 0; j < count; j++ {
			merged.StageIDs = append(merged.StageIDs, st.StageID)
			merged.OriginalNodeIDs = append(merged.OriginalNodeIDs, j)
		}

		merged.Zones = append(merged.Zones, ZoneInfo{
			StageID: st.StageID,
			Top:     top,
			Bottom:  bottom,
			Index:   i,
		})

		offset += count
	}

	// Bridge each stage's winner to the next stage's root. Either side
	// missing means no bridge for that boundary.
	for i := 0; i < n-1; i++ {
		best, ok := bestNodeIndex(&kept[i].Viz)
		if !ok {
			continue
		}
		root, ok := rootNodeIndex(&kept[i+1].Viz)
		if !ok {
			continue
		}
		merged.Viz.Edges = append(merged.Viz.Edges, Edge{
			Parent: offsets[i] + best,
			Child:  offsets[i+1] + root,
		})
	}

	return merged
}

// bestNodeIndex returns the first node flagged is_best_node.
func bestNodeIndex(p *TreePlot) (int, bool) {
	for i := range p.IsBestNode {
		if p.IsBestNode[i] {
			return i, true
		}
	}
	return 0, false
}

// rootNodeIndex returns the first node with no incoming edge.
func rootNodeIndex(p *TreePlot) (int, bool) {
	hasParent := make([]bool, p.NodeCount())
	for _, e := range p.Edges {
		if e.Child >= 0 && e.Child < len(hasParent) {
			hasParent[e.Child] = true
		}
	}
	for i, h := range hasParent {
		if !h {
			return i, true
		}
	}
	return 0, false
}

func yRange(points []Point) (yMin, yMax float64) {
	yMin, yMax = points[0].Y, points[0].Y
	for _, p := range points[1:] {
		if p.Y < yMin {
			yMin = p.Y
		}
		if p.Y > yMax {
			yMax = p.Y
		}
	}
	return yMin, yMax
}

// The append helpers pad a stage's missing or malformed array with count
// defaults so every merged array tracks the merged layout exactly.

func appendStrings(dst, src []string, count int) []string {
	if len(src) == count {
		return append(dst, src...)
	}
	for i := 0; i < count; i++ {
		dst = append(dst, "")
	}
	return dst
}

func appendMetrics(dst, src []*float64, count int) []*float64 {
	if len(src) == count {
		return append(dst, src...)
	}
	for i := 0; i < count; i++ {
		dst = append(dst, nil)
	}
	return dst
}

func appendBools(dst, src []bool, count int) []bool {
	if len(src) == count {
		return append(dst, src...)
	}
	for i := 0; i < count; i++ {
		dst = append(dst, false)
	}
	return dst
}
