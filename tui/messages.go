// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps a domain update for the tea.Msg interface (which is interface{}).
package tui

import (
	"time"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
)

// StoreChangedMsg signals that the run store has a fresh View to render.
// Store ticks are coalesced, so one message may cover several changes.
type StoreChangedMsg struct {
	View runstate.View
}

// TreesUpdatedMsg carries the latest per-stage trees in canonical order.
type TreesUpdatedMsg struct {
	Stages []treeviz.StageTree
}

// TickMsg is sent periodically to update timers and spinners.
type TickMsg struct {
	Time time.Time
}

// AuthRedirectMsg signals that the backend rejected the token. The TUI
// exits; token recovery happens outside the message loop.
type AuthRedirectMsg struct {
	Err error
}

// FatalMsg signals an unrecoverable error. The TUI exits and the caller
// reports it.
type FatalMsg struct {
	Err error
}
