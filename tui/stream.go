// ABOUTME: StreamModel is an inline Bubble Tea model for tailing run progress to the terminal.
// ABOUTME: Displays per-stage status, durations, spinners, and optional verbose event lines without alt-screen.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/watchtower/runstate"
)

// maxVerboseLines limits the number of recent event lines shown under the
// running stage in verbose mode.
const maxVerboseLines = 5

// stagePhase is the derived display state of one stage in the tail view.
type stagePhase int

const (
	stagePending stagePhase = iota
	stageRunning
	stageDone
)

// stageRow is one stage's derived line in the tail view.
type stageRow struct {
	id      string
	phase   stagePhase
	elapsed time.Duration
}

// StreamModel is an inline (non-alt-screen) Bubble Tea model that tails a
// run as a streaming list of stages with status markers and elapsed times.
// Everything it shows derives from the store snapshot, so a reconnect
// replay converges to the same picture.
type StreamModel struct {
	store   *runstate.Store
	storeCh <-chan struct{}
	unsub   func()
	verbose bool

	view runstate.View

	spinnerIdx int
	done       bool
	authErr    error
	fatalErr   error
	now        func() time.Time
	width      int
}

// NewStreamModel creates a StreamModel for inline run tailing. It
// subscribes before taking the initial snapshot, so a change landing
// between the two still produces a tick.
func NewStreamModel(store *runstate.Store, verbose bool) StreamModel {
	storeCh, unsub := store.Subscribe()
	return StreamModel{
		store:   store,
		storeCh: storeCh,
		unsub:   unsub,
		verbose: verbose,
		view:    store.Snapshot(),
		now:     time.Now,
	}
}

// AuthError returns the authentication failure that ended the session, if any.
func (m StreamModel) AuthError() error {
	return m.authErr
}

// FatalError returns the unrecoverable error that ended the session, if any.
func (m StreamModel) FatalError() error {
	return m.fatalErr
}

// Init implements tea.Model. Returns a batch of initial commands to listen
// for store changes and begin the tick loop.
func (m StreamModel) Init() tea.Cmd {
	return tea.Batch(
		WaitForStoreCmd(m.storeCh, m.store),
		TickCmd(spinnerInterval),
	)
}

// Update implements tea.Model. Routes incoming messages to the appropriate
// handlers.
func (m StreamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case StoreChangedMsg:
		return m.handleStoreChanged(msg)

	case TickMsg:
		return m.handleTick()

	case AuthRedirectMsg:
		m.authErr = msg.Err
		m.done = true
		m.unsub()
		return m, tea.Quit

	case FatalMsg:
		m.fatalErr = msg.Err
		m.done = true
		m.unsub()
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model. Renders the inline streaming progress display.
func (m StreamModel) View() string {
	var b strings.Builder

	runID := m.view.RunID
	if runID == "" {
		runID = "(no run)"
	}
	b.WriteString(fmt.Sprintf("watchtower — run %s\n\n", runID))

	rows := m.stageRows()
	for _, row := range rows {
		b.WriteString(m.renderStageLine(row))
		b.WriteString("\n")

		// Verbose: show recent event lines under the running stage
		if m.verbose && row.phase == stageRunning {
			for _, line := range m.recentLines(row.id) {
				b.WriteString(QueuedStyle.Render("      " + line))
				b.WriteString("\n")
			}
		}
	}
	if len(rows) == 0 {
		b.WriteString(QueuedStyle.Render("  waiting for events..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderProgressLine())
	b.WriteString("\n")

	return b.String()
}

// handleStoreChanged refreshes the snapshot and exits once the run is over
// and the stream has closed behind it.
func (m StreamModel) handleStoreChanged(msg StoreChangedMsg) (tea.Model, tea.Cmd) {
	m.view = msg.View
	if m.view.Run != nil && m.view.Run.Status.Terminal() && m.view.Connection == runstate.ConnDisconnected {
		m.done = true
		m.unsub()
		return m, tea.Quit
	}
	return m, WaitForStoreCmd(m.storeCh, m.store)
}

// handleTick advances the spinner and returns a new tick if still running.
func (m StreamModel) handleTick() (tea.Model, tea.Cmd) {
	m.spinnerIdx++
	if m.done {
		return m, nil
	}
	return m, TickCmd(spinnerInterval)
}

// handleKeyMsg processes keyboard input.
func (m StreamModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.done = true
		m.unsub()
		return m, tea.Quit
	}
	return m, nil
}

// stageRows derives the per-stage display rows from the timeline. A stage
// is done once its stage_completed event arrives; its duration comes from
// server timestamps, not wall clock.
func (m StreamModel) stageRows() []stageRow {
	if m.view.Run == nil {
		return nil
	}
	timeline := m.view.Run.Timeline

	started := make(map[string]time.Time)
	completed := make(map[string]time.Time)
	for _, e := range timeline {
		switch v := e.(type) {
		case runstate.StageStarted:
			started[v.Stage] = v.Timestamp
		case runstate.StageCompleted:
			completed[v.Stage] = v.Timestamp
		}
	}

	order := runstate.StageOrder(timeline)
	rows := make([]stageRow, 0, len(order))
	for _, id := range order {
		row := stageRow{id: id}
		startAt, hasStart := started[id]
		endAt, hasEnd := completed[id]
		switch {
		case hasEnd:
			row.phase = stageDone
			if hasStart && endAt.After(startAt) {
				row.elapsed = endAt.Sub(startAt)
			}
		case hasStart:
			row.phase = stageRunning
			if d := m.now().Sub(startAt); d > 0 {
				row.elapsed = d
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// recentLines returns the last few event lines for the given stage.
func (m StreamModel) recentLines(stage string) []string {
	var lines []string
	for _, e := range m.view.Run.Timeline {
		meta := e.Meta()
		if meta.Stage != stage {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", meta.Timestamp.Format("15:04:05"), runstate.Describe(e)))
	}
	if len(lines) > maxVerboseLines {
		lines = lines[len(lines)-maxVerboseLines:]
	}
	return lines
}

// renderStageLine renders a single stage's status line.
func (m StreamModel) renderStageLine(row stageRow) string {
	switch row.phase {
	case stageRunning:
		frame := SpinnerFrames[m.spinnerIdx%len(SpinnerFrames)]
		return RunningStyle.Render(fmt.Sprintf("  %s %s", frame, row.id)) +
			RunningStyle.Render(fmt.Sprintf("  running %s", formatDuration(row.elapsed)))

	case stageDone:
		return CompletedStyle.Render(fmt.Sprintf("  ✓ %s", row.id)) +
			CompletedStyle.Render(fmt.Sprintf("  %s", formatDuration(row.elapsed)))

	default: // stagePending
		return QueuedStyle.Render(fmt.Sprintf("    %s", row.id))
	}
}

// renderProgressLine renders the bottom progress/completion line.
func (m StreamModel) renderProgressLine() string {
	run := m.view.Run
	if run == nil {
		return QueuedStyle.Render("  connecting · " + m.connectionLabel())
	}

	rows := m.stageRows()
	total := len(rows)
	doneCount := 0
	for _, row := range rows {
		if row.phase == stageDone {
			doneCount++
		}
	}
	elapsedStr := formatDuration(runElapsed(run, m.now))

	if run.Status.Terminal() {
		if run.Status == runstate.StatusCompleted {
			return CompletedStyle.Render(
				fmt.Sprintf("  ✓ %d/%d stages · %s · %s", doneCount, total, elapsedStr, run.Status))
		}
		return FailedStyle.Render(
			fmt.Sprintf("  ✗ %d/%d stages · %s · %s", doneCount, total, elapsedStr, run.Status))
	}

	return QueuedStyle.Render(
		fmt.Sprintf("  %d/%d stages · %s elapsed · %s", doneCount, total, elapsedStr, m.connectionLabel()))
}

// connectionLabel is the short form of the stream state for the tail view.
func (m StreamModel) connectionLabel() string {
	switch m.view.Connection {
	case runstate.ConnConnected:
		return "live"
	case runstate.ConnConnecting:
		return "connecting"
	case runstate.ConnError:
		return "stream lost"
	default:
		return "offline"
	}
}

// formatDuration formats a duration as a human-readable string like "0.1s" or "2.3s".
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 10 {
		return fmt.Sprintf("%.1fs", secs)
	}
	if secs < 60 {
		return fmt.Sprintf("%.0fs", secs)
	}
	mins := int(secs) / 60
	remainSecs := int(secs) % 60
	return fmt.Sprintf("%dm%02ds", mins, remainSecs)
}
