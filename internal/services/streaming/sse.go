package streaming

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"go.uber.org/zap"
)

// maxLineSize bounds one SSE line. Content deltas carrying inline data can
// run far past typical line lengths, so the ceiling is generous.
const maxLineSize = 1024 * 1024

// doneSentinel terminates OpenAI-family streams. It is forwarded like any
// other event but never parsed as JSON.
const doneSentinel = "[DONE]"

func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLineSize)
	s.Split(scanLines)
	return s
}

// scanLines splits on \n but keeps any trailing \r, so an upstream emitting
// CRLF framing reaches the client byte-for-byte.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseSSELine splits one SSE field line. ok is false for comments and lines
// with no colon; both are forwarded but carry nothing for the meter.
func parseSSELine(line string) (field, value string, ok bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" || line[0] == ':' {
		return "", "", false
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	return field, strings.TrimPrefix(value, " "), true
}

// frame is one complete SSE event: the exact bytes to forward, plus the
// event name and data payload the accumulator reads.
type frame struct {
	raw   []byte
	event string
	data  []string
}

// payload joins the frame's data lines. Multi-line data joins with newline
// per the SSE grammar; both vendors send a single line in practice.
func (f *frame) payload() []byte {
	switch len(f.data) {
	case 0:
		return nil
	case 1:
		return []byte(f.data[0])
	default:
		return []byte(strings.Join(f.data, "\n"))
	}
}

// frameReader assembles raw lines into frames. It holds at most the frame
// being assembled; completed frames are handed off before the next is read.
type frameReader struct {
	scanner *bufio.Scanner
	logger  *zap.Logger

	raw       bytes.Buffer
	event     string
	data      []string
	anomalies int
}

func newFrameReader(r io.Reader, logger *zap.Logger) *frameReader {
	return &frameReader{scanner: newScanner(r), logger: logger}
}

// next returns the following frame. After the upstream closes it returns
// io.EOF, possibly alongside a final frame when the stream ended without a
// terminating blank line.
func (r *frameReader) next() (*frame, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" || line == "\r" {
			if r.raw.Len() == 0 {
				continue
			}
			// The terminating blank line belongs to the frame's bytes so the
			// client sees intact framing.
			r.raw.WriteString(line)
			r.raw.WriteByte('\n')
			return r.take(false), nil
		}

		r.raw.WriteString(line)
		r.raw.WriteByte('\n')

		field, value, ok := parseSSELine(line)
		if !ok {
			if line[0] != ':' {
				r.anomalies++
				if r.anomalies == 1 {
					r.logger.Warn("Malformed SSE line forwarded as-is",
						zap.String("line", truncate(line, 200)))
				}
			}
			continue
		}
		switch field {
		case "event":
			r.event = value
		case "data":
			r.data = append(r.data, value)
		}
	}

	err := r.scanner.Err()
	if err == nil {
		err = io.EOF
	}
	if r.raw.Len() > 0 {
		return r.take(true), err
	}
	return nil, err
}

// take closes out the pending frame. terminate adds the blank line a stream
// that ended mid-frame never sent.
func (r *frameReader) take(terminate bool) *frame {
	if terminate {
		r.raw.WriteByte('\n')
	}
	raw := make([]byte, r.raw.Len())
	copy(raw, r.raw.Bytes())

	f := &frame{raw: raw, event: r.event, data: r.data}
	r.raw.Reset()
	r.event = ""
	r.data = nil
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
