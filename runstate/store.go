// ABOUTME: Mutex-guarded store owning one run's state, connection health, and change notifications.
// ABOUTME: All mutation funnels through the pure reducers; readers get immutable View snapshots.

package runstate

import "sync"

// ConnectionStatus mirrors the stream client's connection health into the
// store so the UI has a single place to read from.
type ConnectionStatus string

const (
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnError        ConnectionStatus = "error"
)

// View is an immutable snapshot of the store. Run points at reducer output,
// which is never mutated in place, so a View stays valid after later writes.
type View struct {
	RunID      string
	Run        *RunState
	Connection ConnectionStatus
	Err        string
	Seq        uint64
}

// Store holds the canonical state for one run at a time. Writers are the
// stream client's dispatch path; readers are UI pulls. Subscribers get a
// coalesced tick per change and re-read the latest View.
type Store struct {
	mu      sync.Mutex
	runID   string
	state   *RunState
	conn    ConnectionStatus
	lastErr string
	seq     uint64
	seen    map[string]bool
	subs    map[chan struct{}]struct{}
}

// NewStore returns an empty store with no run bound.
func NewStore() *Store {
	return &Store{
		conn: ConnDisconnected,
		seen: make(map[string]bool),
		subs: make(map[chan struct{}]struct{}),
	}
}

// Reset discards all run state and binds the store to a new run id. Called
// when the monitored run changes; ephemeral UI state resets alongside.
func (s *Store) Reset(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.state = nil
	s.conn = ConnDisconnected
	s.lastErr = ""
	s.seen = make(map[string]bool)
	s.bumpLocked()
}

// RunID returns the run the store is bound to.
func (s *Store) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// SetSnapshot replaces the whole state and clears any prior error.
func (s *Store) SetSnapshot(next RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ApplySnapshot(s.state, next)
	s.seen = make(map[string]bool, len(s.state.Timeline))
	for _, e := range s.state.Timeline {
		s.seen[e.Meta().ID] = true
	}
	s.lastErr = ""
	s.bumpLocked()
}

// PatchState applies a partial update. Patches before the first snapshot are
// dropped.
func (s *Store) PatchState(d Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil || d.Empty() {
		return
	}
	s.state = ApplyDelta(s.state, d)
	s.bumpLocked()
}

// AddEvent appends one timeline event, idempotent by id. Duplicates from
// reconnect re-delivery are dropped without notifying subscribers.
func (s *Store) AddEvent(e TimelineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}
	id := e.Meta().ID
	if s.seen[id] {
		return
	}
	s.state = AppendEvent(s.state, e)
	s.seen[id] = true
	s.bumpLocked()
}

// SetConnection records the stream client's connection health. errMsg is
// empty except when status is ConnError.
func (s *Store) SetConnection(status ConnectionStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == status && s.lastErr == errMsg {
		return
	}
	s.conn = status
	s.lastErr = errMsg
	s.bumpLocked()
}

// Snapshot returns the current View.
func (s *Store) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		RunID:      s.runID,
		Run:        s.state,
		Connection: s.conn,
		Err:        s.lastErr,
		Seq:        s.seq,
	}
}

// Subscribe registers for change notifications. The channel carries one
// coalesced tick per burst of changes; a slow subscriber misses ticks, not
// state, because it re-reads Snapshot. The returned func unsubscribes and is
// idempotent.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{}, 1)
	s.subs[ch] = struct{}{}
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Store) bumpLocked() {
	s.seq++
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
