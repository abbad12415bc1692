// ABOUTME: Frame type and the pure frame-text parser for the run event wire format.
// ABOUTME: Field rules follow the W3C EventSource spec: event/data/id/retry, ':' comments, single leading space stripped.

package wire

import (
	"strconv"
	"strings"
)

// Frame is one parsed unit of the push-stream wire format.
type Frame struct {
	Event string // from "event:" line, defaults to "message"
	Data  string // from "data:" line(s), joined with newlines for multi-line
	ID    string // from "id:" line
	Retry int    // from "retry:" line, -1 if not set
}

// ParseFrame parses the raw text of one frame (lines joined with "\n", frame
// terminator excluded) into a Frame. ok is false when the frame carries no
// data field; callers drop such frames.
func ParseFrame(raw string) (Frame, bool) {
	f := Frame{Retry: -1}
	var dataLines []string
	hasData := false

	for _, line := range strings.Split(raw, "\n") {
		if line == "" {
			continue
		}
		// Comment lines start with ':'.
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := splitField(line)
		switch field {
		case "event":
			f.Event = value
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "id":
			f.ID = value
		case "retry":
			n, err := strconv.Atoi(value)
			if err == nil {
				f.Retry = n
			}
			// Invalid retry values are ignored per the SSE spec.
		default:
			// Unknown fields are ignored.
		}
	}

	if !hasData {
		return Frame{}, false
	}
	if f.Event == "" {
		f.Event = "message"
	}
	f.Data = strings.Join(dataLines, "\n")
	return f, true
}

// Encode renders the frame as wire text including the blank-line terminator.
// Multi-line data becomes one "data:" line per line, which ParseFrame joins
// back. A data field is always written, even when empty, so an encoded frame
// is never dropped by the receiving side.
func (f Frame) Encode() string {
	var b strings.Builder
	if f.Event != "" {
		b.WriteString("event: ")
		b.WriteString(f.Event)
		b.WriteByte('\n')
	}
	if f.ID != "" {
		b.WriteString("id: ")
		b.WriteString(f.ID)
		b.WriteByte('\n')
	}
	// Retry 0 means "unset" on hand-built frames and -1 on parsed ones;
	// neither belongs on the wire.
	if f.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(f.Retry))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(f.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// splitField splits a frame line into field name and value.
// If there is no colon, the entire line is the field name and value is empty.
// If there is a colon, the field is everything before the first colon,
// and the value is everything after, with a single leading space stripped.
func splitField(line string) (field, value string) {
	colonIdx := strings.IndexByte(line, ':')
	if colonIdx == -1 {
		return line, ""
	}
	field = line[:colonIdx]
	value = line[colonIdx+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}
