package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/providers"
)

// Dispositions recorded as the usage log's error_message when the upstream
// did not name one.
const (
	DispositionClientDisconnect = "client_disconnect"
	DispositionIdleTimeout      = "stream_idle_timeout"
	DispositionReadError        = "upstream_stream_read_error"
)

// StreamSink receives forwarded frames. Writes are flushed per event so each
// completed frame reaches the client before the next is read.
type StreamSink interface {
	io.Writer
	Flush()
}

// Result is the terminal disposition of one metered stream. Billing runs
// exactly once on it.
type Result struct {
	Usage     providers.Usage
	Estimated bool
	Events    int

	// Complete means the upstream signaled its own terminal event. Partial
	// streams still bill whatever was metered.
	Complete      bool
	UpstreamError string
	ClientGone    bool
	IdleTimedOut  bool

	MessageID  string
	Model      string
	StopReason string
}

// ErrorMessage maps the disposition onto the usage log's error_message
// column. Empty means a clean completion.
func (r *Result) ErrorMessage() string {
	switch {
	case r.UpstreamError != "":
		return r.UpstreamError
	case r.IdleTimedOut:
		return DispositionIdleTimeout
	case r.ClientGone:
		return DispositionClientDisconnect
	}
	return ""
}

// Snapshot is the compact response summary the usage log stores in place of
// a body.
func (r *Result) Snapshot() []byte {
	snap := map[string]interface{}{
		"streamed": true,
		"events":   r.Events,
		"complete": r.Complete,
	}
	if r.MessageID != "" {
		snap["message_id"] = r.MessageID
	}
	if r.Model != "" {
		snap["model"] = r.Model
	}
	if r.StopReason != "" {
		snap["stop_reason"] = r.StopReason
	}
	b, _ := json.Marshal(snap)
	return b
}

// Meter forwards one SSE stream event-by-event while reconstructing usage
// from the payloads it relays. Forwarding and accounting never touch the
// same bytes: frames go to the sink verbatim, the accumulator reads parsed
// copies.
type Meter struct {
	family      providers.Family
	idleTimeout time.Duration
	logger      *zap.Logger
}

func NewMeter(family providers.Family, idleTimeout time.Duration, logger *zap.Logger) *Meter {
	return &Meter{family: family, idleTimeout: idleTimeout, logger: logger}
}

type readResult struct {
	f   *frame
	err error
}

// Pump relays upstream until a terminal disposition: upstream EOF, an idle
// timeout, or the client going away. It always returns a Result; transport
// failures become dispositions, not errors, because billing must still run.
func (m *Meter) Pump(ctx context.Context, upstream io.Reader, sink StreamSink) *Result {
	acc := newAccumulator(m.family)
	res := &Result{}
	sawDone := false

	frames := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	reader := newFrameReader(upstream, m.logger)
	go func() {
		for {
			f, err := reader.next()
			select {
			case frames <- readResult{f: f, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case rr := <-frames:
			if rr.f != nil {
				if !m.relay(rr.f, acc, res, sink, &sawDone) {
					m.finish(res, acc, sawDone)
					return res
				}
			}
			if rr.err != nil {
				if !errors.Is(rr.err, io.EOF) {
					if ctx.Err() != nil {
						res.ClientGone = true
					} else {
						m.logger.Warn("Upstream stream read failed", zap.Error(rr.err))
						res.UpstreamError = DispositionReadError
					}
				}
				m.finish(res, acc, sawDone)
				return res
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)

		case <-idle.C:
			m.logger.Warn("Stream idle timeout, abandoning upstream",
				zap.Duration("timeout", m.idleTimeout),
				zap.Int("events", res.Events))
			res.IdleTimedOut = true
			m.finish(res, acc, sawDone)
			return res

		case <-ctx.Done():
			res.ClientGone = true
			m.finish(res, acc, sawDone)
			return res
		}
	}
}

// relay forwards one frame and feeds the accumulator. false means the client
// write failed and the stream is over.
func (m *Meter) relay(f *frame, acc accumulator, res *Result, sink StreamSink, sawDone *bool) bool {
	if _, err := sink.Write(f.raw); err != nil {
		res.ClientGone = true
		return false
	}
	sink.Flush()
	res.Events++

	payload := f.payload()
	if len(payload) == 0 {
		return true
	}
	if string(payload) == doneSentinel {
		*sawDone = true
		return true
	}
	if !gjson.ValidBytes(payload) {
		m.logger.Warn("Unparseable stream payload forwarded unmetered",
			zap.String("event", f.event))
		return true
	}
	acc.observe(f.event, payload)
	return true
}

func (m *Meter) finish(res *Result, acc accumulator, sawDone bool) {
	a := acc.result()
	res.Usage = a.usage
	res.Complete = a.complete || sawDone
	res.MessageID = a.messageID
	res.Model = a.model
	res.StopReason = a.stopReason
	if res.UpstreamError == "" {
		res.UpstreamError = a.upstreamErr
	}

	if res.Usage.IsZero() && a.words > 0 {
		res.Usage.OutputTokens = int(float64(a.words) * 1.3)
		res.Estimated = true
		m.logger.Warn("Stream ended without a usage block, estimating from text deltas",
			zap.Int("words", a.words),
			zap.Int("estimated_output_tokens", res.Usage.OutputTokens))
	}
}
