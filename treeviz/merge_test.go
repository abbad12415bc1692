// ABOUTME: Tests for the merge engine's zone geometry, edge re-indexing, padding, and bridges.
// ABOUTME: Includes the two-stage bridge scenario and the zone partition property for N up to 6.

package treeviz

import (
	"math"
	"testing"
)

const eps = 1e-9

func approx(a, b float64) bool {
	return math.Abs(a-b) <= eps
}

// chainStage builds a stage whose nodes form a parent chain 0->1->...->n-1
// with Y spread evenly over [0, 1].
func chainStage(id string, n int) StageTree {
	viz := TreePlot{}
	for i := 0; i < n; i++ {
		y := 0.0
		if n > 1 {
			y = float64(i) / float64(n-1)
		}
		viz.Layout = append(viz.Layout, Point{X: float64(i) * 0.1, Y: y})
		if i > 0 {
			viz.Edges = append(viz.Edges, Edge{Parent: i - 1, Child: i})
		}
	}
	return StageTree{StageID: id, Version: 1, Viz: viz}
}

func TestMergeEmptyInput(t *testing.T) {
	if m := Merge(nil); m != nil {
		t.Errorf("expected nil for empty input, got %+v", m)
	}
}

func TestMergeAllStagesEmpty(t *testing.T) {
	stages := []StageTree{
		{StageID: "a", Version: 1},
		{StageID: "b", Version: 1},
	}
	if m := Merge(stages); m != nil {
		t.Errorf("expected nil when every stage is empty, got %+v", m)
	}
}

func TestMergeTwoStageBridge(t *testing.T) {
	// Stage 1: three nodes, node 2 is the winner. Stage 2: two nodes, node 0
	// is the root. Expect 5 merged nodes, 2 zones, one bridge 2 -> 3.
	s1 := StageTree{
		StageID: "stage_1",
		Version: 1,
		Viz: TreePlot{
			Layout:     []Point{{0.1, 0.0}, {0.2, 0.5}, {0.3, 1.0}},
			Edges:      []Edge{{0, 1}, {1, 2}},
			IsBestNode: []bool{false, false, true},
		},
	}
	s2 := StageTree{
		StageID: "stage_2",
		Version: 1,
		Viz: TreePlot{
			Layout: []Point{{0.4, 0.0}, {0.5, 1.0}},
			Edges:  []Edge{{0, 1}},
		},
	}

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}
	if m.StageID != FullTreeID {
		t.Errorf("expected stage id %q, got %q", FullTreeID, m.StageID)
	}
	if m.Viz.NodeCount() != 5 {
		t.Errorf("expected 5 nodes, got %d", m.Viz.NodeCount())
	}
	if len(m.Zones) != 2 {
		t.Errorf("expected 2 zones, got %d", len(m.Zones))
	}

	var bridges []Edge
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			bridges = append(bridges, e)
		}
	}
	if len(bridges) != 1 {
		t.Fatalf("expected exactly one bridge edge, got %d", len(bridges))
	}
	if bridges[0] != (Edge{Parent: 2, Child: 3}) {
		t.Errorf("expected bridge 2 -> 3, got %d -> %d", bridges[0].Parent, bridges[0].Child)
	}
}

func TestMergeZonePartition(t *testing.T) {
	for n := 1; n <= 6; n++ {
		stages := make([]StageTree, n)
		for i := range stages {
			stages[i] = chainStage(stageName(i), 2)
		}
		m := Merge(stages)
		if m == nil {
			t.Fatalf("n=%d: expected merged output", n)
		}
		if len(m.Zones) != n {
			t.Fatalf("n=%d: expected %d zones, got %d", n, n, len(m.Zones))
		}
		for i, z := range m.Zones {
			if z.Bottom <= z.Top {
				t.Errorf("n=%d zone %d: expected positive height, got [%v, %v]", n, i, z.Top, z.Bottom)
			}
			if z.Top < -eps || z.Bottom > 1+eps {
				t.Errorf("n=%d zone %d: outside [0,1]: [%v, %v]", n, i, z.Top, z.Bottom)
			}
			if i > 0 && z.Top <= m.Zones[i-1].Bottom {
				t.Errorf("n=%d zone %d: overlaps previous (top %v <= prior bottom %v)", n, i, z.Top, m.Zones[i-1].Bottom)
			}
			if z.Index != i {
				t.Errorf("n=%d zone %d: expected index %d, got %d", n, i, i, z.Index)
			}
		}
	}
}

func stageName(i int) string {
	return "stage_" + string(rune('a'+i))
}

func TestMergePaddingByStageCount(t *testing.T) {
	// 3 stages: 10% padding. Zone height 1/3, usable bottom = top + (1/3)*0.9.
	m3 := Merge([]StageTree{chainStage("a", 2), chainStage("b", 2), chainStage("c", 2)})
	if m3 == nil {
		t.Fatal("expected merged output")
	}
	wantBottom := (1.0 / 3.0) * 0.9
	if !approx(m3.Zones[0].Bottom, wantBottom) {
		t.Errorf("3 stages: expected first zone bottom %v, got %v", wantBottom, m3.Zones[0].Bottom)
	}

	// 4 stages: 8% padding. Zone height 1/4, usable bottom = 0.25*0.92.
	m4 := Merge([]StageTree{chainStage("a", 2), chainStage("b", 2), chainStage("c", 2), chainStage("d", 2)})
	if m4 == nil {
		t.Fatal("expected merged output")
	}
	wantBottom = 0.25 * 0.92
	if !approx(m4.Zones[0].Bottom, wantBottom) {
		t.Errorf("4 stages: expected first zone bottom %v, got %v", wantBottom, m4.Zones[0].Bottom)
	}
}

func TestMergeYRescaling(t *testing.T) {
	// One stage with a non-trivial Y range: min lands on the zone top,
	// max on the padded bottom, X untouched, order preserved.
	st := StageTree{
		StageID: "only",
		Version: 1,
		Viz: TreePlot{
			Layout: []Point{{0.7, 2.0}, {0.1, 6.0}, {0.4, 4.0}},
		},
	}
	m := Merge([]StageTree{st})
	if m == nil {
		t.Fatal("expected merged output")
	}

	zone := m.Zones[0]
	if !approx(zone.Top, 0) || !approx(zone.Bottom, 0.9) {
		t.Fatalf("unexpected single-stage zone: [%v, %v]", zone.Top, zone.Bottom)
	}
	if !approx(m.Viz.Layout[0].Y, 0) {
		t.Errorf("expected min Y on zone top, got %v", m.Viz.Layout[0].Y)
	}
	if !approx(m.Viz.Layout[1].Y, 0.9) {
		t.Errorf("expected max Y on zone bottom, got %v", m.Viz.Layout[1].Y)
	}
	if !approx(m.Viz.Layout[2].Y, 0.45) {
		t.Errorf("expected midpoint rescaled to 0.45, got %v", m.Viz.Layout[2].Y)
	}
	for i, want := range []float64{0.7, 0.1, 0.4} {
		if !approx(m.Viz.Layout[i].X, want) {
			t.Errorf("node %d: expected X %v unchanged, got %v", i, want, m.Viz.Layout[i].X)
		}
	}
}

func TestMergeDegenerateYLandsOnZoneCenter(t *testing.T) {
	st := StageTree{
		StageID: "flat",
		Version: 1,
		Viz: TreePlot{
			Layout: []Point{{0.1, 3.0}, {0.2, 3.0}, {0.3, 3.0}},
		},
	}
	m := Merge([]StageTree{st})
	if m == nil {
		t.Fatal("expected merged output")
	}
	center := (m.Zones[0].Top + m.Zones[0].Bottom) / 2
	for i, p := range m.Viz.Layout {
		if !approx(p.Y, center) {
			t.Errorf("node %d: expected zone center %v, got %v", i, center, p.Y)
		}
	}
}

func TestMergeEdgeReindexing(t *testing.T) {
	s1 := chainStage("a", 3) // edges (0,1) (1,2)
	s2 := chainStage("b", 2) // edge (0,1) -> global (3,4)
	s1.Viz.IsBestNode = []bool{false, true, false}

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}

	var inStage []Edge
	for _, e := range m.Viz.Edges {
		if !m.IsBridge(e) {
			inStage = append(inStage, e)
		}
	}
	want := []Edge{{0, 1}, {1, 2}, {3, 4}}
	if len(inStage) != len(want) {
		t.Fatalf("expected %d in-stage edges, got %d", len(want), len(inStage))
	}
	for i, e := range want {
		if inStage[i] != e {
			t.Errorf("edge %d: expected %v, got %v", i, e, inStage[i])
		}
	}
}

func TestMergeArrayLengthInvariant(t *testing.T) {
	s1 := chainStage("a", 3)
	s1.Viz.Code = []string{"c0", "c1", "c2"}
	s1.Viz.Metrics = []*float64{nil, f(0.5), f(0.9)}
	s2 := chainStage("b", 2) // no extra arrays at all

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}

	n := m.Viz.NodeCount()
	lengths := map[string]int{
		"code":              len(m.Viz.Code),
		"plan":              len(m.Viz.Plan),
		"analysis":          len(m.Viz.Analysis),
		"exc_type":          len(m.Viz.ExcType),
		"ablation_name":     len(m.Viz.AblationName),
		"hyperparam_name":   len(m.Viz.HyperparamName),
		"metrics":           len(m.Viz.Metrics),
		"is_best_node":      len(m.Viz.IsBestNode),
		"is_seed_node":      len(m.Viz.IsSeedNode),
		"stage_ids":         len(m.StageIDs),
		"original_node_ids": len(m.OriginalNodeIDs),
	}
	for name, l := range lengths {
		if l != n {
			t.Errorf("%s: expected length %d, got %d", name, n, l)
		}
	}
	if err := m.Viz.Validate(); err != nil {
		t.Errorf("expected merged plot to validate, got %v", err)
	}
}

func f(v float64) *float64 { return &v }

func TestMergeMissingArraysPadDefaults(t *testing.T) {
	s1 := chainStage("a", 2) // no code array
	s2 := chainStage("b", 2)
	s2.Viz.Code = []string{"x", "y"}

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}
	want := []string{"", "", "x", "y"}
	for i, w := range want {
		if m.Viz.Code[i] != w {
			t.Errorf("code[%d]: expected %q, got %q", i, w, m.Viz.Code[i])
		}
	}
}

func TestMergeEmptyStageSkipped(t *testing.T) {
	s1 := chainStage("a", 2)
	s1.Viz.IsBestNode = []bool{false, true}
	empty := StageTree{StageID: "hollow", Version: 1}
	s2 := chainStage("c", 2)

	m := Merge([]StageTree{s1, empty, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}
	if len(m.Zones) != 2 {
		t.Fatalf("expected 2 zones (empty stage consumes none), got %d", len(m.Zones))
	}
	if m.Zones[0].StageID != "a" || m.Zones[1].StageID != "c" {
		t.Errorf("unexpected zone stages: %q, %q", m.Zones[0].StageID, m.Zones[1].StageID)
	}

	// The bridge spans the kept neighbors.
	var bridges []Edge
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			bridges = append(bridges, e)
		}
	}
	if len(bridges) != 1 {
		t.Fatalf("expected one bridge across the skipped stage, got %d", len(bridges))
	}
	if bridges[0] != (Edge{Parent: 1, Child: 2}) {
		t.Errorf("expected bridge 1 -> 2, got %d -> %d", bridges[0].Parent, bridges[0].Child)
	}
}

func TestMergeSingleStageNoBridges(t *testing.T) {
	s := chainStage("solo", 4)
	s.Viz.IsBestNode = []bool{false, false, false, true}

	m := Merge([]StageTree{s})
	if m == nil {
		t.Fatal("expected merged output")
	}
	if len(m.Zones) != 1 {
		t.Errorf("expected 1 zone, got %d", len(m.Zones))
	}
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			t.Errorf("expected no bridges for a single stage, got %v", e)
		}
	}
}

func TestMergeNoBestNodeSkipsBridge(t *testing.T) {
	s1 := chainStage("a", 2) // no is_best_node array
	s2 := chainStage("b", 2)

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			t.Errorf("expected no bridge without a winner, got %v", e)
		}
	}
}

func TestMergeNoRootSkipsBridge(t *testing.T) {
	s1 := chainStage("a", 2)
	s1.Viz.IsBestNode = []bool{true, false}
	// Every node in stage 2 has an incoming edge.
	s2 := StageTree{
		StageID: "b",
		Version: 1,
		Viz: TreePlot{
			Layout: []Point{{0, 0}, {0, 1}},
			Edges:  []Edge{{0, 1}, {1, 0}},
		},
	}

	m := Merge([]StageTree{s1, s2})
	if m == nil {
		t.Fatal("expected merged output")
	}
	for _, e := range m.Viz.Edges {
		if m.IsBridge(e) {
			t.Errorf("expected no bridge without a root, got %v", e)
		}
	}
}

func TestMergeProvenance(t *testing.T) {
	m := Merge([]StageTree{chainStage("a", 2), chainStage("b", 3)})
	if m == nil {
		t.Fatal("expected merged output")
	}
	wantStages := []string{"a", "a", "b", "b", "b"}
	wantIndex := []int{0, 1, 0, 1, 2}
	for i := range wantStages {
		if m.StageIDs[i] != wantStages[i] {
			t.Errorf("node %d: expected stage %q, got %q", i, wantStages[i], m.StageIDs[i])
		}
		if m.OriginalNodeIDs[i] != wantIndex[i] {
			t.Errorf("node %d: expected original index %d, got %d", i, wantIndex[i], m.OriginalNodeIDs[i])
		}
	}
}

func TestMergeZonesOrderedTopDown(t *testing.T) {
	m := Merge([]StageTree{chainStage("first", 2), chainStage("second", 2), chainStage("third", 2)})
	if m == nil {
		t.Fatal("expected merged output")
	}
	// First stage occupies the top band; every node of a later stage sits
	// strictly below every node of an earlier one.
	for i := 1; i < len(m.Zones); i++ {
		if m.Zones[i].Top <= m.Zones[i-1].Top {
			t.Errorf("zone %d: expected top below zone %d", i, i-1)
		}
	}
	firstMax := math.Inf(-1)
	for i, p := range m.Viz.Layout {
		if m.StageIDs[i] == "first" && p.Y > firstMax {
			firstMax = p.Y
		}
	}
	for i, p := range m.Viz.Layout {
		if m.StageIDs[i] != "first" && p.Y <= firstMax {
			t.Errorf("node %d (%s): expected below the first stage's band", i, m.StageIDs[i])
		}
	}
}
