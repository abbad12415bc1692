// ABOUTME: Pull-based reader that cuts a raw byte stream into blank-line-delimited frames.
// ABOUTME: Buffers partial chunks across reads; a chunk ending mid-frame never yields early.

package wire

import (
	"bufio"
	"io"
	"strings"
)

// Reader reads frames from a byte stream. It is single-pass: each frame is
// yielded exactly once, in arrival order. Cancellation is the caller's
// concern: closing the underlying reader (or cancelling the request context
// that owns it) unblocks Next with the close error.
type Reader struct {
	scanner *lineScanner
	done    bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: newLineScanner(r)}
}

// Next returns the raw text of the next frame: all lines up to the next
// blank-line boundary, joined with "\n". Runs of blank lines between frames
// produce nothing. Returns io.EOF on clean stream end; lines pending at EOF
// are flushed as a final frame first.
func (r *Reader) Next() (string, error) {
	if r.done {
		return "", io.EOF
	}

	var lines []string
	for {
		line, err := r.scanner.readLine()
		if err != nil {
			if err == io.EOF {
				r.done = true
				if len(lines) > 0 {
					return strings.Join(lines, "\n"), nil
				}
				return "", io.EOF
			}
			return "", err
		}

		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return strings.Join(lines, "\n"), nil
		}

		lines = append(lines, line)
	}
}

// NextFrame returns the next frame that parses to a usable Frame, skipping
// frames without a data field. Returns io.EOF on clean stream end.
func (r *Reader) NextFrame() (Frame, error) {
	for {
		raw, err := r.Next()
		if err != nil {
			return Frame{}, err
		}
		if f, ok := ParseFrame(raw); ok {
			return f, nil
		}
	}
}

// lineScanner reads lines from an io.Reader, handling CR, LF, and CRLF line
// endings. bufio.Scanner only handles LF and CRLF natively, so we implement a
// custom scanner that also treats standalone CR as a line terminator.
type lineScanner struct {
	reader *bufio.Reader
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{reader: bufio.NewReaderSize(r, 4096)}
}

// readLine reads one line from the reader, stripping the line ending.
func (s *lineScanner) readLine() (string, error) {
	var line strings.Builder
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			if err == io.EOF {
				if line.Len() > 0 {
					return line.String(), nil
				}
				return "", io.EOF
			}
			return "", err
		}

		if b == '\n' {
			return line.String(), nil
		}

		if b == '\r' {
			// Check for CRLF. If next byte is LF, consume it.
			next, err := s.reader.ReadByte()
			if err == nil {
				if next != '\n' {
					// Not CRLF, just CR. Put the byte back.
					_ = s.reader.UnreadByte()
				}
			}
			return line.String(), nil
		}

		line.WriteByte(b)
	}
}
