// ABOUTME: Player owns the evolving run state and fans released frames out to subscribers.
// ABOUTME: State mutation goes through the runstate reducers, same as the consuming client.

package replay

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/treeviz"
	"github.com/2389-research/watchtower/wire"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this starts losing frames.
const subscriberBuffer = 64

// PlayerConfig controls playback. Speed is a clock multiplier: 2 plays the
// script at twice the recorded pace, and 0 releases everything immediately.
type PlayerConfig struct {
	Speed float64
	Logf  func(string, ...any)
}

// Player plays one script: it releases frames on the script's schedule,
// reduces them into the run state, and fans them out to subscribers. Trees
// are released silently; they are served by pull, never pushed.
type Player struct {
	script *Script
	speed  float64
	logf   func(string, ...any)

	mu      sync.Mutex
	state   *runstate.RunState
	history []wire.Frame
	trees   map[string]treeviz.StageTree
	subs    map[chan wire.Frame]struct{}
	closed  bool
}

// NewPlayer creates a player over script. The run state starts queued with
// an empty timeline and evolves only through released frames.
func NewPlayer(script *Script, cfg PlayerConfig) *Player {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}
	speed := cfg.Speed
	if speed < 0 {
		speed = 0
	}
	return &Player{
		script: script,
		speed:  speed,
		logf:   logf,
		state: runstate.ApplySnapshot(nil, runstate.RunState{
			RunID:  script.Run.RunID,
			Status: runstate.StatusQueued,
		}),
		trees: make(map[string]treeviz.StageTree),
		subs:  make(map[chan wire.Frame]struct{}),
	}
}

// RunID returns the run this player serves.
func (p *Player) RunID() string {
	return p.script.Run.RunID
}

// Run plays the script to the end, then closes every subscriber channel:
// the played run is over, exactly like a worker closing its stream. Returns
// ctx.Err() when cancelled mid-script.
func (p *Player) Run(ctx context.Context) error {
	defer p.close()

	sched := buildSchedule(p.script)
	p.logf("replay: playing run=%s frames=%d trees=%d speed=%g",
		p.script.Run.RunID, len(p.script.Frames), len(p.script.Trees), p.speed)

	elapsed := time.Duration(0)
	for _, item := range sched {
		if wait := p.scaled(item.at - elapsed); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		elapsed = item.at

		if item.frame != nil {
			p.releaseFrame(*item.frame)
		} else {
			p.releaseTree(*item.tree)
		}
	}

	p.logf("replay: script complete run=%s", p.script.Run.RunID)
	return nil
}

// State returns a copy of the run state at the current playback position.
func (p *Player) State() runstate.RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.state
}

// Tree returns the highest-version tree released so far for a stage.
func (p *Player) Tree(stageID string) (treeviz.StageTree, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trees[stageID]
	return t, ok
}

// Report returns the script's report once the run has reached a terminal
// status. Before that, or for scripts without a report, ok is false.
func (p *Player) Report() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.script.Report == "" || !p.state.Status.Terminal() {
		return "", false
	}
	return p.script.Report, true
}

// SubscribeWithHistory returns every frame released so far plus a channel of
// frames released from now on. After playback ends the channel arrives
// already closed, so late joiners get the full history and a clean end.
// cancel is idempotent and must be called when the subscriber is done.
func (p *Player) SubscribeWithHistory() (history []wire.Frame, ch <-chan wire.Frame, cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	history = append([]wire.Frame(nil), p.history...)
	sub := make(chan wire.Frame, subscriberBuffer)
	if p.closed {
		close(sub)
		return history, sub, func() {}
	}
	p.subs[sub] = struct{}{}
	cancel = func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[sub]; ok {
			delete(p.subs, sub)
			close(sub)
		}
	}
	return history, sub, cancel
}

func (p *Player) releaseFrame(f ScriptFrame) {
	frame := wire.Frame{Event: f.Event, Data: string(f.Data), Retry: -1}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.reduceLocked(frame)
	p.history = append(p.history, frame)
	for sub := range p.subs {
		select {
		case sub <- frame:
		default:
			// Never block playback on a stalled subscriber.
			p.logf("replay: dropping frame for slow subscriber event=%s", frame.Event)
		}
	}
}

func (p *Player) reduceLocked(frame wire.Frame) {
	switch frame.Event {
	case EventSnapshot:
		var next runstate.RunState
		if err := json.Unmarshal([]byte(frame.Data), &next); err != nil {
			p.logf("replay: dropping malformed snapshot frame: %v", err)
			return
		}
		p.state = runstate.ApplySnapshot(p.state, next)
	case EventTimeline:
		evt, err := runstate.DecodeEvent([]byte(frame.Data))
		if err != nil {
			p.logf("replay: dropping malformed timeline frame: %v", err)
			return
		}
		p.state = runstate.AppendEvent(p.state, evt)
	case EventDelta:
		var d runstate.Delta
		if err := json.Unmarshal([]byte(frame.Data), &d); err != nil {
			p.logf("replay: dropping malformed delta frame: %v", err)
			return
		}
		p.state = runstate.ApplyDelta(p.state, d)
	}
	// Pings and unknown events still reach subscribers; they just carry no
	// state change.
}

func (p *Player) releaseTree(t TreeSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.trees[t.Tree.StageID]
	if ok && t.Tree.Version <= existing.Version {
		return
	}
	p.trees[t.Tree.StageID] = t.Tree
}

func (p *Player) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for sub := range p.subs {
		close(sub)
	}
	p.subs = make(map[chan wire.Frame]struct{})
}

func (p *Player) scaled(d time.Duration) time.Duration {
	if p.speed == 0 || d <= 0 {
		return 0
	}
	return time.Duration(float64(d) / p.speed)
}

type scheduleItem struct {
	at    time.Duration
	frame *ScriptFrame
	tree  *TreeSnapshot
}

// buildSchedule merges frames and tree releases into one timeline. The sort
// is stable, so items sharing an offset keep their script order and frames
// stay ahead of same-instant tree releases.
func buildSchedule(s *Script) []scheduleItem {
	items := make([]scheduleItem, 0, len(s.Frames)+len(s.Trees))
	for i := range s.Frames {
		items = append(items, scheduleItem{at: s.Frames[i].At, frame: &s.Frames[i]})
	}
	for i := range s.Trees {
		items = append(items, scheduleItem{at: s.Trees[i].At, tree: &s.Trees[i]})
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].at < items[b].at })
	return items
}
