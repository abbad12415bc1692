// ABOUTME: Renders the merged search tree as a character grid: stage zones as labeled bands, nodes plotted by position.
// ABOUTME: Best, seed, and failed nodes get distinct glyphs; bridge edges between stages render as vertical dot trails.
package tui

import (
	"fmt"
	"strings"

	"github.com/2389-research/watchtower/treeviz"
)

// Node glyphs, in drawing precedence order: a failed node stays failed
// even when flagged best.
const (
	glyphNode   = '●'
	glyphBest   = '★'
	glyphSeed   = '◆'
	glyphFailed = '✗'
	glyphBridge = '·'
)

// TreePanelModel renders the merged all-stages tree as a grid projection.
// Normalized layout coordinates map onto grid cells, so the picture
// degrades gracefully at any terminal size.
type TreePanelModel struct {
	merged *treeviz.MergedTree
	width  int
	height int
}

// NewTreePanelModel creates an empty tree panel.
func NewTreePanelModel() TreePanelModel {
	return TreePanelModel{}
}

// SetStages re-merges the given per-stage trees. The given order is
// canonical: zones stack top to bottom in that order.
func (m *TreePanelModel) SetStages(stages []treeviz.StageTree) {
	m.merged = treeviz.Merge(stages)
}

// Merged exposes the current merged tree, or nil before the first update.
func (m TreePanelModel) Merged() *treeviz.MergedTree {
	return m.merged
}

// SetSize sets the available dimensions.
func (m *TreePanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// View renders the tree panel.
func (m TreePanelModel) View() string {
	title := "SEARCH TREE"

	var content string
	if m.merged == nil {
		content = "No trees yet"
	} else {
		content = m.renderGrid()
	}

	rendered := TitleStyle.Render(title) + "\n" + content

	return BorderStyle.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(rendered)
}

// renderGrid projects the merged layout onto a rune grid: zone bands
// first, bridge trails over them, node glyphs last so they always win.
func (m TreePanelModel) renderGrid() string {
	// Reserve the border, title, and legend lines.
	rows := m.height - 5
	cols := m.width - 4
	if rows < 4 {
		rows = 4
	}
	if cols < 16 {
		cols = 16
	}

	grid := make([][]rune, rows)
	for i := range grid {
		grid[i] = blankRow(cols)
	}

	viz := &m.merged.Viz

	for _, z := range m.merged.Zones {
		writeZoneBand(grid[rowFor(z.Top, rows)], z.StageID)
	}

	for _, e := range viz.Edges {
		if !m.merged.IsBridge(e) {
			continue
		}
		pr := rowFor(viz.Layout[e.Parent].Y, rows)
		cr := rowFor(viz.Layout[e.Child].Y, rows)
		cc := colFor(viz.Layout[e.Child].X, cols)
		for r := pr + 1; r < cr; r++ {
			if grid[r][cc] == ' ' {
				grid[r][cc] = glyphBridge
			}
		}
	}

	for i, p := range viz.Layout {
		grid[rowFor(p.Y, rows)][colFor(p.X, cols)] = nodeGlyph(viz, i)
	}

	lines := make([]string, 0, rows+1)
	for _, row := range grid {
		lines = append(lines, strings.TrimRight(string(row), " "))
	}
	lines = append(lines, legendLine())
	return strings.Join(lines, "\n")
}

// writeZoneBand draws a horizontal rule labeled with the stage id.
func writeZoneBand(row []rune, stageID string) {
	for i := range row {
		row[i] = '─'
	}
	label := []rune(fmt.Sprintf("── %s ", stageID))
	for i, ch := range label {
		if i >= len(row) {
			break
		}
		row[i] = ch
	}
}

// nodeGlyph picks the marker for merged node i.
func nodeGlyph(p *treeviz.TreePlot, i int) rune {
	switch {
	case i < len(p.ExcType) && p.ExcType[i] != "":
		return glyphFailed
	case p.BestAt(i):
		return glyphBest
	case p.SeedAt(i):
		return glyphSeed
	default:
		return glyphNode
	}
}

func legendLine() string {
	return TreeZoneStyle.Render(fmt.Sprintf("%c node  %c best  %c seed  %c failed  %c bridge",
		glyphNode, glyphBest, glyphSeed, glyphFailed, glyphBridge))
}

// rowFor maps a normalized 0..1 coordinate onto a grid row.
func rowFor(y float64, rows int) int {
	return clampIndex(int(y*float64(rows-1)+0.5), rows)
}

// colFor maps a normalized 0..1 coordinate onto a grid column.
func colFor(x float64, cols int) int {
	return clampIndex(int(x*float64(cols-1)+0.5), cols)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func blankRow(cols int) []rune {
	row := make([]rune, cols)
	for i := range row {
		row[i] = ' '
	}
	return row
}
