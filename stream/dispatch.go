// ABOUTME: Routes decoded SSE frames to typed handlers by event name.
// ABOUTME: Malformed payloads are logged and dropped; one bad frame never stops the stream.

package stream

import (
	"encoding/json"

	"github.com/2389-research/watchtower/runstate"
	"github.com/2389-research/watchtower/wire"
)

// Wire event names the backend sends.
const (
	eventSnapshot = "state_snapshot"
	eventTimeline = "timeline_event"
	eventDelta    = "state_delta"
	eventPing     = "ping"
)

// Handlers receives decoded frames. Nil members are skipped.
type Handlers struct {
	OnSnapshot func(runstate.RunState)
	OnEvent    func(runstate.TimelineEvent)
	OnDelta    func(runstate.Delta)
	OnPing     func()
	OnUnknown  func(event, data string)
}

// dispatch decodes one frame and routes it by event name. A payload that
// fails to decode drops the frame with a log line.
func dispatch(frame wire.Frame, h Handlers, logf func(string, ...any)) {
	switch frame.Event {
	case eventSnapshot:
		var state runstate.RunState
		if err := json.Unmarshal([]byte(frame.Data), &state); err != nil {
			logf("stream: dropping malformed %s frame: %v", frame.Event, err)
			return
		}
		if h.OnSnapshot != nil {
			h.OnSnapshot(state)
		}
	case eventTimeline:
		event, err := runstate.DecodeEvent([]byte(frame.Data))
		if err != nil {
			logf("stream: dropping malformed %s frame: %v", frame.Event, err)
			return
		}
		if h.OnEvent != nil {
			h.OnEvent(event)
		}
	case eventDelta:
		var delta runstate.Delta
		if err := json.Unmarshal([]byte(frame.Data), &delta); err != nil {
			logf("stream: dropping malformed %s frame: %v", frame.Event, err)
			return
		}
		if h.OnDelta != nil {
			h.OnDelta(delta)
		}
	case eventPing:
		// Keepalive only. State must not change.
		if h.OnPing != nil {
			h.OnPing()
		}
	default:
		logf("stream: ignoring unknown event type %q", frame.Event)
		if h.OnUnknown != nil {
			h.OnUnknown(frame.Event, frame.Data)
		}
	}
}
