package streaming

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseSSELine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
		value string
		ok    bool
	}{
		{"event field", "event: message_start", "event", "message_start", true},
		{"data field", `data: {"type":"ping"}`, "data", `{"type":"ping"}`, true},
		{"no space after colon", "data:{}", "data", "{}", true},
		{"crlf terminator", "data: {}\r", "data", "{}", true},
		{"comment", ": keep-alive", "", "", false},
		{"no colon", "garbage", "", "", false},
		{"empty", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, value, ok := parseSSELine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.field, field)
				assert.Equal(t, tt.value, value)
			}
		})
	}
}

func TestFrameReaderAssemblesFrames(t *testing.T) {
	input := "event: message_start\n" +
		`data: {"type":"message_start"}` + "\n" +
		"\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n" +
		"\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f1, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "message_start", f1.event)
	assert.Equal(t, `{"type":"message_start"}`, string(f1.payload()))
	assert.Equal(t, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n", string(f1.raw))

	f2, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "message_stop", f2.event)

	_, err = r.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderFinalFrameWithoutBlankLine(t *testing.T) {
	input := "data: [DONE]\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f, err := r.next()
	require.NotNil(t, f)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "[DONE]", string(f.payload()))
}

func TestFrameReaderPreservesCRLFFraming(t *testing.T) {
	input := "event: message_start\r\n" +
		`data: {"type":"message_start"}` + "\r\n" +
		"\r\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, input, string(f.raw), "CRLF framing forwards byte-for-byte")
	assert.Equal(t, "message_start", f.event)
	assert.Equal(t, `{"type":"message_start"}`, string(f.payload()))

	_, err = r.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderMultiLineData(t *testing.T) {
	input := "data: line one\ndata: line two\n\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(f.payload()))
}

func TestFrameReaderSkipsLeadingBlankLines(t *testing.T) {
	input := "\n\ndata: hello\n\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(f.payload()))
}

func TestFrameReaderForwardsMalformedLines(t *testing.T) {
	// A line with no colon is structurally broken but still forwarded.
	input := "this is not sse\ndata: ok\n\n"

	r := newFrameReader(strings.NewReader(input), zap.NewNop())

	f, err := r.next()
	require.NoError(t, err)
	assert.Contains(t, string(f.raw), "this is not sse\n")
	assert.Equal(t, "ok", string(f.payload()))
}

func TestWordCounterSplitsAcrossDeltas(t *testing.T) {
	var wc wordCounter
	// "hello world" split mid-word must count two words, not three.
	wc.add("hel")
	wc.add("lo wor")
	wc.add("ld")
	assert.Equal(t, 2, wc.words)

	var wc2 wordCounter
	wc2.add("one two ")
	wc2.add("three")
	assert.Equal(t, 3, wc2.words)

	var wc3 wordCounter
	wc3.add("")
	assert.Equal(t, 0, wc3.words)
}
