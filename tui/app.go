// ABOUTME: Top-level Bubble Tea AppModel that orchestrates the watch view panels into a unified layout.
// ABOUTME: Implements tea.Model (Init, Update, View) and routes messages to the timeline, tree, and status bar.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
)

// spinnerInterval is the tick cadence for spinner frames and elapsed time.
const spinnerInterval = 100 * time.Millisecond

// MainPanel selects which panel fills the main area.
type MainPanel int

const (
	PanelTimeline MainPanel = iota
	PanelTree
)

// AppConfig wires the AppModel to its collaborators. Reconnect and
// Attempts come from the stream client; Trees receives poller updates and
// must be a capacity-one channel fed through PublishTrees.
type AppConfig struct {
	Store       *runstate.Store
	Trees       chan []treeviz.StageTree
	Reconnect   func()
	Attempts    func() int
	GroupWindow time.Duration
	NoGrouping  bool
}

// AppModel is the top-level Bubble Tea model for the watch view.
type AppModel struct {
	timeline  TimelinePanelModel
	tree      TreePanelModel
	statusBar StatusBarModel

	store   *runstate.Store
	storeCh <-chan struct{}
	unsub   func()
	trees   chan []treeviz.StageTree

	reconnect func()
	attempts  func() int

	view        runstate.View
	panel       MainPanel
	grouping    bool
	groupWindow time.Duration
	ticking     bool

	authErr  error
	fatalErr error

	width  int
	height int
}

// NewAppModel creates an AppModel wired to the given store. It subscribes
// before taking the initial snapshot, so a change landing between the two
// still produces a tick and nothing is lost.
func NewAppModel(cfg AppConfig) AppModel {
	storeCh, unsub := cfg.Store.Subscribe()
	if cfg.GroupWindow <= 0 {
		cfg.GroupWindow = runstate.DefaultGroupWindow
	}

	m := AppModel{
		timeline:    NewTimelinePanelModel(),
		tree:        NewTreePanelModel(),
		statusBar:   NewStatusBarModel(),
		store:       cfg.Store,
		storeCh:     storeCh,
		unsub:       unsub,
		trees:       cfg.Trees,
		reconnect:   cfg.Reconnect,
		attempts:    cfg.Attempts,
		grouping:    !cfg.NoGrouping,
		groupWindow: cfg.GroupWindow,
		ticking:     true,
		view:        cfg.Store.Snapshot(),
	}
	m.timeline.SetItems(m.displayItems())
	m.statusBar.SetView(m.view)
	return m
}

// AuthError returns the authentication failure that ended the session, if any.
func (m AppModel) AuthError() error {
	return m.authErr
}

// FatalError returns the unrecoverable error that ended the session, if any.
func (m AppModel) FatalError() error {
	return m.fatalErr
}

// Init implements tea.Model. Returns a batch of initial commands to listen
// for store changes and tree updates and begin the tick loop.
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		WaitForStoreCmd(m.storeCh, m.store),
		TickCmd(spinnerInterval),
	}
	if m.trees != nil {
		cmds = append(cmds, WaitForTreesCmd(m.trees))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model. Routes incoming messages to the appropriate
// sub-panel and returns the updated model with any follow-up commands.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StoreChangedMsg:
		return m.handleStoreChanged(msg)

	case TreesUpdatedMsg:
		m.tree.SetStages(msg.Stages)
		return m, WaitForTreesCmd(m.trees)

	case TickMsg:
		return m.handleTick()

	case AuthRedirectMsg:
		m.authErr = msg.Err
		m.unsub()
		return m, tea.Quit

	case FatalMsg:
		m.fatalErr = msg.Err
		m.unsub()
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, nil
}

// View implements tea.Model. Renders the main panel, the failure banner
// when the stream is down for good, and the status bar.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// Minimum terminal size guard to prevent layout overflow
	if m.width < 40 || m.height < 10 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x10.", m.width, m.height)
	}

	statusBarHeight := 1
	bannerView := ""
	bannerHeight := 0
	if m.view.Connection == runstate.ConnError {
		bannerView = m.renderBanner()
		bannerHeight = lipgloss.Height(bannerView)
	}

	mainHeight := m.height - statusBarHeight - bannerHeight
	if mainHeight < 3 {
		mainHeight = 3
	}

	var mainView string
	switch m.panel {
	case PanelTree:
		m.tree.SetSize(m.width, mainHeight)
		mainView = m.tree.View()
	default:
		m.timeline.SetSize(m.width, mainHeight)
		mainView = m.timeline.View()
	}

	m.statusBar.SetWidth(m.width)

	var b strings.Builder
	if bannerView != "" {
		b.WriteString(bannerView)
		b.WriteString("\n")
	}
	b.WriteString(mainView)
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())

	return b.String()
}

// renderBanner renders the stream-failure banner with the reconnect
// affordance.
func (m AppModel) renderBanner() string {
	msg := m.view.Err
	if msg == "" {
		msg = "connection lost"
	}
	return BannerStyle.Render(FailedStyle.Render(msg) + "  press r to reconnect, q to quit")
}

// handleStoreChanged re-renders panels from a fresh snapshot. A changed
// run id resets the timeline's view state before anything renders.
func (m AppModel) handleStoreChanged(msg StoreChangedMsg) (tea.Model, tea.Cmd) {
	if msg.View.RunID != m.view.RunID {
		m.timeline.Reset()
	}
	m.view = msg.View
	m.timeline.SetItems(m.displayItems())
	m.statusBar.SetView(m.view)
	if m.attempts != nil {
		m.statusBar.SetAttempts(m.attempts())
	}
	return m, WaitForStoreCmd(m.storeCh, m.store)
}

// displayItems groups the timeline, or maps events one to one when
// grouping is toggled off.
func (m AppModel) displayItems() []runstate.DisplayItem {
	if m.view.Run == nil {
		return nil
	}
	events := m.view.Run.Timeline
	if m.grouping {
		return runstate.GroupTimeline(events, runstate.GroupingConfig{Window: m.groupWindow})
	}
	items := make([]runstate.DisplayItem, 0, len(events))
	for _, e := range events {
		items = append(items, runstate.DisplayItem{Events: []runstate.TimelineEvent{e}})
	}
	return items
}

// handleTick advances spinners and re-arms while there is anything left to
// animate. Ticking stops once the run is over and the stream has closed;
// a manual reconnect restarts it.
func (m AppModel) handleTick() (tea.Model, tea.Cmd) {
	m.statusBar.AdvanceSpinner()
	if m.view.Run != nil && m.view.Run.Status.Terminal() && m.view.Connection == runstate.ConnDisconnected {
		m.ticking = false
		return m, nil
	}
	m.ticking = true
	return m, TickCmd(spinnerInterval)
}

// handleKeyMsg processes keyboard input, routing unhandled keys to the
// timeline panel.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.unsub()
		return m, tea.Quit
	case "r":
		if m.reconnect != nil {
			m.reconnect()
		}
		if !m.ticking {
			m.ticking = true
			return m, TickCmd(spinnerInterval)
		}
		return m, nil
	case "t":
		if m.panel == PanelTimeline {
			m.panel = PanelTree
		} else {
			m.panel = PanelTimeline
		}
		return m, nil
	case "g":
		m.grouping = !m.grouping
		m.timeline.SetItems(m.displayItems())
		return m, nil
	default:
		if m.panel == PanelTimeline {
			m.timeline.HandleKey(msg.String())
		}
		return m, nil
	}
}
