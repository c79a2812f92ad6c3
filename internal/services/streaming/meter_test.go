package streaming

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/providers"
)

type captureSink struct {
	buf     bytes.Buffer
	flushes int
	failAt  int // fail the nth write when > 0
	writes  int
}

func (s *captureSink) Write(p []byte) (int, error) {
	s.writes++
	if s.failAt > 0 && s.writes >= s.failAt {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *captureSink) Flush() { s.flushes++ }

func newTestMeter(family providers.Family) *Meter {
	return NewMeter(family, 5*time.Second, zap.NewNop())
}

const anthropicStream = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-20250514","usage":{"input_tokens":5,"output_tokens":1}}}` + "\n" +
	"\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hello "}}` + "\n" +
	"\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"world"}}` + "\n" +
	"\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}` + "\n" +
	"\n" +
	"event: message_stop\n" +
	`data: {"type":"message_stop"}` + "\n" +
	"\n"

func TestPumpAnthropicForwardsAndMeters(t *testing.T) {
	sink := &captureSink{}
	res := newTestMeter(providers.FamilyAnthropicMessages).
		Pump(context.Background(), strings.NewReader(anthropicStream), sink)

	// Forwarded byte-for-byte, one flush per event.
	assert.Equal(t, anthropicStream, sink.buf.String())
	assert.Equal(t, 5, res.Events)
	assert.Equal(t, 5, sink.flushes)

	assert.True(t, res.Complete)
	assert.False(t, res.Estimated)
	assert.Empty(t, res.ErrorMessage())
	assert.Equal(t, 5, res.Usage.InputTokens)
	assert.Equal(t, 7, res.Usage.OutputTokens)
	assert.Equal(t, "msg_1", res.MessageID)
	assert.Equal(t, "claude-sonnet-4-20250514", res.Model)
	assert.Equal(t, "end_turn", res.StopReason)
}

func TestPumpReplayIsDeterministic(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	m := newTestMeter(providers.FamilyAnthropicMessages)

	r1 := m.Pump(context.Background(), strings.NewReader(anthropicStream), first)
	r2 := m.Pump(context.Background(), strings.NewReader(anthropicStream), second)

	assert.Equal(t, first.buf.String(), second.buf.String())
	assert.Equal(t, r1.Usage, r2.Usage)
	assert.Equal(t, r1.Events, r2.Events)
}

func TestPumpOpenAIChatUsageBlock(t *testing.T) {
	stream := `data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"delta":{"content":"Hi"},"finish_reason":null}]}` + "\n" +
		"\n" +
		`data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[{"delta":{},"finish_reason":"stop"}]}` + "\n" +
		"\n" +
		`data: {"id":"chatcmpl-1","model":"gpt-4o","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2}}` + "\n" +
		"\n" +
		"data: [DONE]\n" +
		"\n"

	sink := &captureSink{}
	res := newTestMeter(providers.FamilyOpenAIChat).
		Pump(context.Background(), strings.NewReader(stream), sink)

	assert.Equal(t, stream, sink.buf.String())
	assert.True(t, res.Complete)
	assert.False(t, res.Estimated)
	assert.Equal(t, 3, res.Usage.InputTokens)
	assert.Equal(t, 2, res.Usage.OutputTokens)
	assert.Equal(t, "chatcmpl-1", res.MessageID)
	assert.Equal(t, "stop", res.StopReason)
}

func TestPumpOpenAIChatWithoutUsageEstimates(t *testing.T) {
	stream := `data: {"id":"chatcmpl-2","model":"gpt-4o","choices":[{"delta":{"content":"one two three four"},"finish_reason":null}]}` + "\n" +
		"\n" +
		`data: {"id":"chatcmpl-2","model":"gpt-4o","choices":[{"delta":{"content":" five six"},"finish_reason":"stop"}]}` + "\n" +
		"\n" +
		"data: [DONE]\n" +
		"\n"

	sink := &captureSink{}
	res := newTestMeter(providers.FamilyOpenAIChat).
		Pump(context.Background(), strings.NewReader(stream), sink)

	require.True(t, res.Estimated)
	// 6 words * 1.3 = 7.8, truncated to 7.
	assert.Equal(t, 7, res.Usage.OutputTokens)
	assert.Equal(t, 0, res.Usage.InputTokens)
	assert.True(t, res.Complete)
}

func TestPumpOpenAIResponsesCompleted(t *testing.T) {
	stream := "event: response.created\n" +
		`data: {"type":"response.created","response":{"id":"resp_1","model":"gpt-4.1"}}` + "\n" +
		"\n" +
		"event: response.output_text.delta\n" +
		`data: {"type":"response.output_text.delta","delta":"Hello"}` + "\n" +
		"\n" +
		"event: response.completed\n" +
		`data: {"type":"response.completed","response":{"id":"resp_1","status":"completed","usage":{"input_tokens":9,"output_tokens":4}}}` + "\n" +
		"\n"

	sink := &captureSink{}
	res := newTestMeter(providers.FamilyOpenAIResponses).
		Pump(context.Background(), strings.NewReader(stream), sink)

	assert.True(t, res.Complete)
	assert.Equal(t, 9, res.Usage.InputTokens)
	assert.Equal(t, 4, res.Usage.OutputTokens)
	assert.Equal(t, "resp_1", res.MessageID)
	assert.Equal(t, "completed", res.StopReason)
}

func TestPumpForwardsUpstreamErrorEvent(t *testing.T) {
	stream := "event: error\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n" +
		"\n"

	sink := &captureSink{}
	res := newTestMeter(providers.FamilyAnthropicMessages).
		Pump(context.Background(), strings.NewReader(stream), sink)

	// The error event reaches the client verbatim and becomes the
	// disposition.
	assert.Equal(t, stream, sink.buf.String())
	assert.Equal(t, "Overloaded", res.ErrorMessage())
	assert.False(t, res.Complete)
}

func TestPumpClientDisconnectKeepsPartialUsage(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("event: message_start\n" +
			`data: {"type":"message_start","message":{"id":"msg_2","usage":{"input_tokens":11}}}` + "\n\n"))
		// Keep the stream open; the client goes away instead.
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sink := &captureSink{}

	done := make(chan *Result, 1)
	go func() {
		done <- newTestMeter(providers.FamilyAnthropicMessages).Pump(ctx, pr, sink)
	}()

	require.Eventually(t, func() bool { return sink.buf.Len() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	res := <-done
	pw.Close()

	assert.True(t, res.ClientGone)
	assert.Equal(t, DispositionClientDisconnect, res.ErrorMessage())
	assert.Equal(t, 11, res.Usage.InputTokens)
	assert.False(t, res.Complete)
}

func TestPumpFailedClientWriteStops(t *testing.T) {
	sink := &captureSink{failAt: 2}
	res := newTestMeter(providers.FamilyAnthropicMessages).
		Pump(context.Background(), strings.NewReader(anthropicStream), sink)

	assert.True(t, res.ClientGone)
	assert.Equal(t, 1, res.Events)
}

func TestPumpIdleTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	sink := &captureSink{}
	m := NewMeter(providers.FamilyAnthropicMessages, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	res := m.Pump(context.Background(), pr, sink)

	assert.True(t, res.IdleTimedOut)
	assert.Equal(t, DispositionIdleTimeout, res.ErrorMessage())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPumpUnparseablePayloadForwardedUnmetered(t *testing.T) {
	stream := "data: not json at all\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	sink := &captureSink{}
	res := newTestMeter(providers.FamilyAnthropicMessages).
		Pump(context.Background(), strings.NewReader(stream), sink)

	assert.Equal(t, stream, sink.buf.String())
	assert.True(t, res.Complete)
	assert.True(t, res.Usage.IsZero())
}
