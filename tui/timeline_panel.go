// ABOUTME: Implements a scrollable timeline panel over grouped display items using the bubbles viewport.
// ABOUTME: Supports focus movement, expand/collapse of groups, and sticky-bottom auto-scroll.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/watchtower/runstate"
)

// TimelinePanelModel renders the run's grouped timeline. Expansion state,
// focus position, and the auto-scroll flag are view-only: they reset when
// the monitored run changes and never touch the store.
type TimelinePanelModel struct {
	items      []runstate.DisplayItem
	expanded   map[string]bool
	focused    int
	autoScroll bool
	headLines  []int // viewport line index of each item's first line
	viewport   viewport.Model
	width      int
	height     int
}

// NewTimelinePanelModel creates an empty timeline panel.
func NewTimelinePanelModel() TimelinePanelModel {
	vp := viewport.New(80, 10)
	return TimelinePanelModel{
		expanded:   make(map[string]bool),
		autoScroll: true,
		viewport:   vp,
	}
}

// groupKey identifies a display item across regroupings. Grouping folds
// the timeline left to right, so a group keeps its first member even as
// new events join it.
func groupKey(it runstate.DisplayItem) string {
	return it.Events[0].Meta().ID
}

// SetItems replaces the displayed items. With auto-scroll armed, focus
// sticks to the newest item and the view stays pinned to the bottom.
func (m *TimelinePanelModel) SetItems(items []runstate.DisplayItem) {
	m.items = items
	if len(m.items) == 0 {
		m.focused = 0
	} else if m.autoScroll || m.focused >= len(m.items) {
		m.focused = len(m.items) - 1
	}
	m.syncViewport()
}

// Reset discards all view state. Called when the monitored run changes.
func (m *TimelinePanelModel) Reset() {
	m.items = nil
	m.expanded = make(map[string]bool)
	m.focused = 0
	m.autoScroll = true
	m.syncViewport()
}

// Len returns the number of display items.
func (m TimelinePanelModel) Len() int {
	return len(m.items)
}

// SetSize sets the available dimensions and updates the viewport.
func (m *TimelinePanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	vpWidth := w - 2
	vpHeight := h - 3
	if vpWidth < 1 {
		vpWidth = 1
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.syncViewport()
}

// HandleKey processes one key press routed from the app model.
func (m *TimelinePanelModel) HandleKey(key string) {
	switch key {
	case "j", "down":
		m.moveFocus(1)
	case "k", "up":
		m.moveFocus(-1)
	case "enter":
		m.toggleFocused()
	}
}

// moveFocus shifts the focused item. Focusing the newest item re-arms
// auto-scroll; moving anywhere else releases it.
func (m *TimelinePanelModel) moveFocus(delta int) {
	if len(m.items) == 0 {
		return
	}
	m.focused += delta
	if m.focused < 0 {
		m.focused = 0
	}
	if m.focused > len(m.items)-1 {
		m.focused = len(m.items) - 1
	}
	m.autoScroll = m.focused == len(m.items)-1
	m.syncViewport()
}

// toggleFocused flips the expansion of the focused group. Single items
// have nothing to expand.
func (m *TimelinePanelModel) toggleFocused() {
	if m.focused >= len(m.items) {
		return
	}
	it := m.items[m.focused]
	if !it.Grouped() {
		return
	}
	key := groupKey(it)
	m.expanded[key] = !m.expanded[key]
	m.syncViewport()
}

// View renders the timeline panel.
func (m TimelinePanelModel) View() string {
	title := "TIMELINE"

	var content string
	if len(m.items) == 0 {
		content = "No events yet"
	} else {
		content = m.viewport.View()
	}

	rendered := TitleStyle.Render(title) + "\n" + content

	return BorderStyle.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(rendered)
}

// syncViewport rebuilds the viewport content, then pins the view to the
// bottom when auto-scroll is armed or keeps the focused item on screen.
func (m *TimelinePanelModel) syncViewport() {
	if len(m.items) == 0 {
		m.viewport.SetContent("")
		m.headLines = nil
		return
	}
	var lines []string
	m.headLines = m.headLines[:0]
	for i, it := range m.items {
		m.headLines = append(m.headLines, len(lines))
		lines = append(lines, m.renderItem(it, i == m.focused)...)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.autoScroll {
		m.viewport.GotoBottom()
		return
	}
	m.scrollFocusedIntoView()
}

// scrollFocusedIntoView adjusts the viewport offset so the focused item's
// head line stays visible.
func (m *TimelinePanelModel) scrollFocusedIntoView() {
	if m.focused >= len(m.headLines) {
		return
	}
	line := m.headLines[m.focused]
	if line < m.viewport.YOffset {
		m.viewport.SetYOffset(line)
	} else if line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

// renderItem renders one display item as a head line, plus member lines
// when the group is expanded.
func (m *TimelinePanelModel) renderItem(it runstate.DisplayItem, focused bool) []string {
	marker := "  "
	if focused {
		marker = "> "
	}

	head := formatEventLine(it.Latest())
	if it.Grouped() {
		arrow := "▸"
		if m.expanded[groupKey(it)] {
			arrow = "▾"
		}
		head = fmt.Sprintf("%s %s %s", arrow, head, GroupCountStyle.Render(fmt.Sprintf("x%d", it.Count())))
	} else {
		head = "  " + head
	}

	lines := []string{marker + head}
	if it.Grouped() && m.expanded[groupKey(it)] {
		for _, e := range it.Events {
			lines = append(lines, "      "+formatEventLine(e))
		}
	}
	return lines
}

// formatEventLine formats a single timeline event as a log line.
func formatEventLine(e runstate.TimelineEvent) string {
	ts := LogTimestampStyle.Render(e.Meta().Timestamp.Format("15:04:05"))
	text := styleForEvent(e).Render(runstate.Describe(e))
	if stage := e.Meta().Stage; stage != "" {
		return fmt.Sprintf("%s %s %s", ts, LogStageStyle.Render("["+stage+"]"), text)
	}
	return fmt.Sprintf("%s %s", ts, text)
}

// styleForEvent returns the appropriate lipgloss style for an event line.
func styleForEvent(e runstate.TimelineEvent) lipgloss.Style {
	switch v := e.(type) {
	case runstate.StageCompleted:
		return LogSuccessStyle
	case runstate.NodeResult:
		if v.ErrorSummary != "" || v.Outcome == "failure" {
			return LogErrorStyle
		}
		return LogEventStyle
	case runstate.RunFinished:
		if v.Status == runstate.StatusCompleted {
			return LogSuccessStyle
		}
		return LogErrorStyle
	default:
		return LogEventStyle
	}
}
