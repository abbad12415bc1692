// ABOUTME: Live stream client: bootstrap snapshot, subscribe, serial frame application, backoff reconnects.
// ABOUTME: One reader generation at a time; a superseded reader can never write to the store.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/2389-research/watchtower/api"
	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/wire"
)

// Config wires a Client to its collaborators.
type Config struct {
	API   *api.Client
	Store *runstate.Store

	Policy ReconnectPolicy
	Logf   func(format string, args ...any)

	// OnAuthError fires when the backend rejects the token. The stream
	// client never retries auth failures; token recovery belongs to the
	// caller.
	OnAuthError func(error)

	// OnTerminal fires when the reconnect budget is exhausted.
	OnTerminal func(error)
}

// Client keeps one run's live stream attached to the store. Each connect
// attempt bootstraps from the state endpoint before reading events, so a
// delta never arrives ahead of a snapshot.
type Client struct {
	api    *api.Client
	store  *runstate.Store
	policy ReconnectPolicy
	logf   func(string, ...any)

	onAuthError func(error)
	onTerminal  func(error)

	mu         sync.Mutex
	runID      string
	generation int
	cancel     context.CancelFunc
	fsm        *machine
}

// New returns a Client. A zero Policy means DefaultReconnectPolicy.
func New(cfg Config) *Client {
	if cfg.Policy == (ReconnectPolicy{}) {
		cfg.Policy = DefaultReconnectPolicy()
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Client{
		api:         cfg.API,
		store:       cfg.Store,
		policy:      cfg.Policy,
		logf:        cfg.Logf,
		onAuthError: cfg.OnAuthError,
		onTerminal:  cfg.OnTerminal,
	}
}

// RunID returns the run the client is bound to.
func (c *Client) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Attempts returns the reconnect attempt count for the current cycle. It
// resets to zero once a connection succeeds, so the UI can label the
// connecting state with how many retries it took to get there.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm == nil {
		return 0
	}
	return c.fsm.attempts
}

// Connect starts streaming runID. Calling it again for the same run while
// a connection is live or in progress is a no-op; a different run
// supersedes the old connection wholesale.
func (c *Client) Connect(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID == runID && c.cancel != nil {
		return
	}
	if c.store.RunID() != runID {
		c.store.Reset(runID)
	}
	c.startLocked(runID, false)
}

// Reconnect retries the current run immediately with a fresh attempt
// budget. This is the manual affordance after a terminal failure or a
// server-side close.
func (c *Client) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID == "" {
		return
	}
	c.startLocked(c.runID, true)
}

// Disconnect aborts the connection and any pending retry. Idempotent, and
// always lands on disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	if c.fsm != nil {
		c.fsm.disconnectRequested()
	}
	c.store.SetConnection(runstate.ConnDisconnected, "")
}

// startLocked begins a new connection generation, superseding any old one.
func (c *Client) startLocked(runID string, retry bool) {
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runID = runID

	if retry && c.fsm != nil {
		c.fsm.manualRetry()
	} else {
		c.fsm = newMachine(c.policy)
		c.fsm.connectRequested()
	}

	c.store.SetConnection(runstate.ConnConnecting, "")
	go c.run(ctx, gen, runID)
}

// apply runs fn only while gen is still the live generation, holding the
// client mutex so generation changes and store writes cannot interleave.
func (c *Client) apply(gen int, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.cancel == nil {
		return false
	}
	fn()
	return true
}

// release clears the cancel handle when this generation is still current,
// so a later Connect for the same run is not mistaken for already live.
func (c *Client) release(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) run(ctx context.Context, gen int, runID string) {
	defer c.release(gen)
	sigs := NewSignatureTracker()

	for {
		err := c.attempt(ctx, gen, runID)

		if ctx.Err() != nil {
			return
		}

		if err == nil {
			// The server finished the stream on purpose. Reconnecting
			// would replay a run that is over; the user can ask for it.
			c.logf("stream: server closed stream run=%s", runID)
			c.apply(gen, func() {
				c.fsm.cleanClose()
				c.store.SetConnection(runstate.ConnDisconnected, "")
			})
			return
		}

		if isAuthError(err) {
			c.logf("stream: authentication rejected run=%s err=%v", runID, err)
			c.apply(gen, func() {
				c.fsm.disconnectRequested()
				c.store.SetConnection(runstate.ConnDisconnected, "")
			})
			if c.onAuthError != nil {
				c.onAuthError(err)
			}
			return
		}

		sig := sigs.Record(err)
		var (
			delay    time.Duration
			terminal bool
		)
		if !c.apply(gen, func() { delay, terminal = c.fsm.connectFailed() }) {
			return
		}

		if terminal {
			msg := fmt.Sprintf("connection failed after %d reconnect attempts: %v", c.policy.MaxAttempts, err)
			if sigs.IsDeterministic(sig) {
				msg = fmt.Sprintf("%s (same failure %d times)", msg, sigs.Count(sig))
			}
			c.logf("stream: giving up run=%s attempts=%d err=%v", runID, c.policy.MaxAttempts, err)
			c.apply(gen, func() { c.store.SetConnection(runstate.ConnError, msg) })
			if c.onTerminal != nil {
				c.onTerminal(errors.New(msg))
			}
			return
		}

		c.logf("stream: reconnecting run=%s delay=%s err=%v", runID, delay, err)
		c.apply(gen, func() { c.store.SetConnection(runstate.ConnConnecting, "") })
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if !c.apply(gen, func() { c.fsm.connectRequested() }) {
			return
		}
	}
}

// attempt performs one bootstrap + stream cycle: snapshot fetch, stream
// open, then strictly serial frame application. A nil return means the
// server ended the stream cleanly.
func (c *Client) attempt(ctx context.Context, gen int, runID string) error {
	state, err := c.api.FetchRunState(ctx, runID)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if !c.apply(gen, func() { c.store.SetSnapshot(*state) }) {
		return context.Canceled
	}

	body, err := c.api.OpenEventStream(ctx, runID)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer body.Close()

	if !c.apply(gen, func() {
		c.fsm.connectSucceeded()
		c.store.SetConnection(runstate.ConnConnected, "")
	}) {
		return context.Canceled
	}

	handlers := Handlers{
		OnSnapshot: c.store.SetSnapshot,
		OnEvent:    c.store.AddEvent,
		OnDelta:    c.store.PatchState,
	}

	reader := wire.NewReader(body)
	for {
		frame, err := reader.NextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if !c.apply(gen, func() { dispatch(frame, handlers, c.logf) }) {
			return context.Canceled
		}
	}
}

func isAuthError(err error) bool {
	var authErr *api.AuthError
	return errors.As(err, &authErr)
}
