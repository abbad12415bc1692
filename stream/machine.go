// ABOUTME: Pure connection state machine for the stream client.
// ABOUTME: No I/O and no timers: inputs are connection outcomes, outputs are phases and backoff delays.

package stream

import "time"

// phase is the connection lifecycle position.
type phase string

const (
	phaseIdle       phase = "idle"
	phaseConnecting phase = "connecting"
	phaseConnected  phase = "connected"
	phaseBackoff    phase = "backoff"
	phaseFailed     phase = "failed"
)

// machine tracks the connection lifecycle. Methods mutate the phase and
// the attempt counter; callers own every side effect (sockets, timers,
// store status).
type machine struct {
	phase    phase
	attempts int
	policy   ReconnectPolicy
}

func newMachine(policy ReconnectPolicy) *machine {
	return &machine{phase: phaseIdle, policy: policy}
}

// connectRequested begins an attempt cycle.
func (m *machine) connectRequested() {
	m.phase = phaseConnecting
}

// connectSucceeded marks the stream live and resets the failure budget.
func (m *machine) connectSucceeded() {
	m.phase = phaseConnected
	m.attempts = 0
}

// connectFailed records one failure. It returns terminal=true when the
// budget was already spent, otherwise the backoff delay before the next
// attempt.
func (m *machine) connectFailed() (delay time.Duration, terminal bool) {
	if m.policy.Exhausted(m.attempts) {
		m.phase = phaseFailed
		return 0, true
	}
	delay = m.policy.Delay(m.attempts)
	m.attempts++
	m.phase = phaseBackoff
	return delay, false
}

// cleanClose records a stream the server finished on purpose. The client
// does not reconnect from here.
func (m *machine) cleanClose() {
	m.phase = phaseIdle
	m.attempts = 0
}

// disconnectRequested aborts the cycle regardless of phase.
func (m *machine) disconnectRequested() {
	m.phase = phaseIdle
	m.attempts = 0
}

// manualRetry restarts the attempt cycle with a fresh budget.
func (m *machine) manualRetry() {
	m.phase = phaseConnecting
	m.attempts = 0
}
