// ABOUTME: Bridge connecting the stream client and tree poller to the Bubble Tea message loop.
// ABOUTME: Provides Bridge for message injection, and tea.Cmd factories for store changes, tree updates, and ticks.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
)

// Bridge wraps a tea.Program's Send method for injecting messages from
// goroutines outside the Bubble Tea message loop.
type Bridge struct {
	send func(msg tea.Msg)
}

// NewBridge creates a Bridge that sends messages via the given function.
// Typically called with program.Send as the argument.
func NewBridge(send func(msg tea.Msg)) *Bridge {
	return &Bridge{send: send}
}

// AuthRedirect implements the stream client's OnAuthError signature. It
// wraps the error in an AuthRedirectMsg and sends it to the TUI.
func (b *Bridge) AuthRedirect(err error) {
	b.send(AuthRedirectMsg{Err: err})
}

// Fatal sends an unrecoverable error into the message loop.
func (b *Bridge) Fatal(err error) {
	b.send(FatalMsg{Err: err})
}

// WaitForStoreCmd returns a tea.Cmd that blocks on the store's change
// channel and sends a StoreChangedMsg carrying a fresh snapshot.
func WaitForStoreCmd(ch <-chan struct{}, store *runstate.Store) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil // unsubscribed, no more changes
		}
		return StoreChangedMsg{View: store.Snapshot()}
	}
}

// WaitForTreesCmd returns a tea.Cmd that blocks on the tree update channel
// and sends a TreesUpdatedMsg when the poller publishes a fresh set.
func WaitForTreesCmd(ch <-chan []treeviz.StageTree) tea.Cmd {
	return func() tea.Msg {
		stages, ok := <-ch
		if !ok {
			return nil // poller stopped, no more updates
		}
		return TreesUpdatedMsg{Stages: stages}
	}
}

// PublishTrees delivers stages on ch, replacing any undelivered update so
// the TUI always renders the freshest set. The channel must be buffered
// with capacity one and have a single producer; the tree poller's OnUpdate
// callback satisfies both.
func PublishTrees(ch chan []treeviz.StageTree, stages []treeviz.StageTree) {
	for {
		select {
		case ch <- stages:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used for spinner animation and elapsed-time refreshes.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}
