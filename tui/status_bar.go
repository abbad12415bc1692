// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing run progress.
// ABOUTME: Displays run id, lifecycle status, stage and focus, progress gauge, connection state, and elapsed time.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/watchtower/runstate"
)

// progressBarWidth is the character width of the progress gauge.
const progressBarWidth = 20

// StatusBarModel displays run and connection status in a single line. It
// is a pure view over the store snapshot; the app feeds it fresh Views,
// reconnect attempt counts, and spinner ticks.
type StatusBarModel struct {
	view       runstate.View
	attempts   int
	spinnerIdx int
	width      int
	now        func() time.Time
}

// NewStatusBarModel creates an empty status bar.
func NewStatusBarModel() StatusBarModel {
	return StatusBarModel{now: time.Now}
}

// SetView replaces the rendered snapshot.
func (m *StatusBarModel) SetView(v runstate.View) {
	m.view = v
}

// SetAttempts records the stream client's reconnect attempt count.
func (m *StatusBarModel) SetAttempts(n int) {
	m.attempts = n
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// AdvanceSpinner moves to the next spinner frame.
func (m *StatusBarModel) AdvanceSpinner() {
	m.spinnerIdx++
}

// Elapsed derives the run duration: the server-reported total once the run
// has finished, otherwise wall time since the run_started event.
func (m StatusBarModel) Elapsed() time.Duration {
	return runElapsed(m.view.Run, m.now)
}

// runElapsed computes a run's duration from its timeline. A run_finished
// event freezes it at the server-reported total; before that it is wall
// time since the run_started timestamp.
func runElapsed(run *runstate.RunState, now func() time.Time) time.Duration {
	if run == nil {
		return 0
	}
	var started time.Time
	for _, e := range run.Timeline {
		switch v := e.(type) {
		case runstate.RunStarted:
			started = v.Timestamp
		case runstate.RunFinished:
			return time.Duration(v.TotalDurationSeconds * float64(time.Second))
		}
	}
	if started.IsZero() {
		return 0
	}
	d := now().Sub(started)
	if d < 0 {
		return 0
	}
	return d
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// renderProgressBar renders a fixed-width gauge for a 0..1 fraction.
func renderProgressBar(fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction*float64(progressBarWidth) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	return fmt.Sprintf("[%s] %d%%", bar, int(fraction*100+0.5))
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	parts := []string{m.runSegment()}
	if seg := m.stageSegment(); seg != "" {
		parts = append(parts, seg)
	}
	if seg := m.progressSegment(); seg != "" {
		parts = append(parts, seg)
	}
	parts = append(parts, m.connectionSegment())
	parts = append(parts, "elapsed: "+formatElapsed(m.Elapsed()))

	content := strings.Join(parts, " | ")
	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}

// runSegment shows the status glyph, run id, and lifecycle status, with a
// spinner frame while the run is live.
func (m StatusBarModel) runSegment() string {
	runID := m.view.RunID
	if runID == "" {
		runID = "(no run)"
	}
	run := m.view.Run
	if run == nil {
		return fmt.Sprintf("%s %s", StatusGlyph(""), runID)
	}
	seg := fmt.Sprintf("%s %s %s", StatusGlyph(run.Status), runID,
		StyleForStatus(run.Status).Render(string(run.Status)))
	if run.Status == runstate.StatusRunning {
		seg += " " + SpinnerFrames[m.spinnerIdx%len(SpinnerFrames)]
	}
	return seg
}

// stageSegment shows the current stage and its focus, or nothing before
// the first stage starts.
func (m StatusBarModel) stageSegment() string {
	run := m.view.Run
	if run == nil || run.CurrentStage == "" {
		return ""
	}
	seg := "stage: " + run.CurrentStage
	if run.CurrentFocus != "" {
		seg += " (" + run.CurrentFocus + ")"
	}
	return seg
}

// progressSegment shows the overall progress gauge when the server has
// reported one.
func (m StatusBarModel) progressSegment() string {
	run := m.view.Run
	if run == nil || run.Progress == nil {
		return ""
	}
	return renderProgressBar(*run.Progress)
}

// connectionSegment labels the stream state. Connection errors render as a
// short marker here; the app's banner carries the full message.
func (m StatusBarModel) connectionSegment() string {
	switch m.view.Connection {
	case runstate.ConnConnected:
		return LogSuccessStyle.Render("live")
	case runstate.ConnConnecting:
		label := "connecting"
		if m.attempts > 0 {
			label = fmt.Sprintf("connecting (attempt %d)", m.attempts)
		}
		return LogStageStyle.Render(label + " " + SpinnerFrames[m.spinnerIdx%len(SpinnerFrames)])
	case runstate.ConnError:
		return FailedStyle.Render("stream lost")
	default:
		return QueuedStyle.Render("offline")
	}
}
