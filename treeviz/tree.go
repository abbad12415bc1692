// ABOUTME: Per-stage search-tree visualization model: positioned nodes, edges, and parallel per-node arrays.
// ABOUTME: Points and edges use the wire's two-element array encoding; absent arrays mean all-defaults.

package treeviz

import (
	"encoding/json"
	"fmt"
)

// FullTreeID is the stage id of a merged tree, which represents every stage
// at once.
const FullTreeID = "full_tree"

// Point is one node position in the normalized layout plane. Y grows
// downward: 0 is the top of the plot, 1 the bottom.
type Point struct {
	X float64
	Y float64
}

// MarshalJSON encodes the point as the wire's [x, y] pair.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

// UnmarshalJSON decodes the wire's [x, y] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// Edge connects a parent node index to a child node index within the same
// layout.
type Edge struct {
	Parent int
	Child  int
}

// MarshalJSON encodes the edge as the wire's [parent, child] pair.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{e.Parent, e.Child})
}

// UnmarshalJSON decodes the wire's [parent, child] pair.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode edge: %w", err)
	}
	e.Parent, e.Child = pair[0], pair[1]
	return nil
}

// TreePlot holds one tree diagram as parallel arrays indexed by node. Every
// present per-node array has exactly len(Layout) entries; an absent array
// reads as all type-appropriate defaults, never as shorter.
type TreePlot struct {
	Layout []Point `json:"layout"`
	Edges  []Edge  `json:"edges,omitempty"`

	Code           []string   `json:"code,omitempty"`
	Plan           []string   `json:"plan,omitempty"`
	Analysis       []string   `json:"analysis,omitempty"`
	ExcType        []string   `json:"exc_type,omitempty"`
	AblationName   []string   `json:"ablation_name,omitempty"`
	HyperparamName []string   `json:"hyperparam_name,omitempty"`
	Metrics        []*float64 `json:"metrics,omitempty"`
	IsBestNode     []bool     `json:"is_best_node,omitempty"`
	IsSeedNode     []bool     `json:"is_seed_node,omitempty"`
}

// NodeCount returns the number of nodes in the plot.
func (p *TreePlot) NodeCount() int {
	return len(p.Layout)
}

// BestAt reports whether node i carries the best-node flag.
func (p *TreePlot) BestAt(i int) bool {
	return i < len(p.IsBestNode) && p.IsBestNode[i]
}

// SeedAt reports whether node i carries the seed-node flag.
func (p *TreePlot) SeedAt(i int) bool {
	return i < len(p.IsSeedNode) && p.IsSeedNode[i]
}

// MetricAt returns node i's metric, or nil when absent.
func (p *TreePlot) MetricAt(i int) *float64 {
	if i < len(p.Metrics) {
		return p.Metrics[i]
	}
	return nil
}

// Validate checks the parallel-array length invariant and edge index bounds.
func (p *TreePlot) Validate() error {
	n := len(p.Layout)
	arrays := []struct {
		name string
		len  int
	}{
		{"code", len(p.Code)},
		{"plan", len(p.Plan)},
		{"analysis", len(p.Analysis)},
		{"exc_type", len(p.ExcType)},
		{"ablation_name", len(p.AblationName)},
		{"hyperparam_name", len(p.HyperparamName)},
		{"metrics", len(p.Metrics)},
		{"is_best_node", len(p.IsBestNode)},
		{"is_seed_node", len(p.IsSeedNode)},
	}
	for _, a := range arrays {
		if a.len != 0 && a.len != n {
			return fmt.Errorf("parallel array %s has %d entries, layout has %d", a.name, a.len, n)
		}
	}
	for i, e := range p.Edges {
		if e.Parent < 0 || e.Parent >= n || e.Child < 0 || e.Child >= n {
			return fmt.Errorf("edge %d (%d -> %d) out of bounds for %d nodes", i, e.Parent, e.Child, n)
		}
	}
	return nil
}

// StageTree is the server-reported tree snapshot for one stage. A later
// fetch with the same stage id and a higher version supersedes an earlier
// one; a received tree is immutable.
type StageTree struct {
	StageID string   `json:"stage_id"`
	Version int      `json:"version"`
	Viz     TreePlot `json:"viz"`
}

// ZoneInfo describes the vertical band one stage occupies in a merged tree,
// in the same normalized top-down coordinates as the layout.
type ZoneInfo struct {
	StageID string  `json:"stage_id"`
	Top     float64 `json:"top"`
	Bottom  float64 `json:"bottom"`
	Index   int     `json:"index"`
}

// MergedTree is the synthesized all-stages diagram. StageIDs and
// OriginalNodeIDs run parallel to Viz.Layout and record, for every merged
// node, the stage it came from and its index there.
type MergedTree struct {
	StageID         string     `json:"stage_id"`
	Viz             TreePlot   `json:"viz"`
	Zones           []ZoneInfo `json:"zone_metadata"`
	StageIDs        []string   `json:"stage_ids"`
	OriginalNodeIDs []int      `json:"original_node_ids"`
}

// IsBridge reports whether a merged edge crosses a stage boundary, which
// only the synthesized bridge edges do.
func (m *MergedTree) IsBridge(e Edge) bool {
	return m.StageIDs[e.Parent] != m.StageIDs[e.Child]
}
