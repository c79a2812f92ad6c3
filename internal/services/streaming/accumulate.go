package streaming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/amerfu/llmgate/internal/services/providers"
)

// accumulator folds one family's data payloads into usage while the raw
// bytes pass through untouched.
type accumulator interface {
	observe(event string, payload []byte)
	result() accumulated
}

// accumulated is everything a finished stream left behind.
type accumulated struct {
	usage       providers.Usage
	complete    bool
	upstreamErr string
	messageID   string
	model       string
	stopReason  string
	words       int
}

func newAccumulator(family providers.Family) accumulator {
	switch family {
	case providers.FamilyAnthropicMessages:
		return &anthropicState{}
	case providers.FamilyOpenAIResponses:
		return &responsesState{}
	default:
		return &chatState{}
	}
}

// wordCounter counts whitespace-delimited words across delta boundaries
// without retaining the text. A word split across two deltas counts once.
type wordCounter struct {
	words   int
	midWord bool
}

func (w *wordCounter) add(text string) {
	if text == "" {
		return
	}
	n := len(strings.Fields(text))
	first, _ := utf8.DecodeRuneInString(text)
	if n > 0 && w.midWord && !unicode.IsSpace(first) {
		n--
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	w.midWord = !unicode.IsSpace(last)
	w.words += n
}

func errorMessage(payload []byte) string {
	if m := gjson.GetBytes(payload, "error.message").String(); m != "" {
		return m
	}
	return "upstream error event"
}

// anthropicState follows the Messages stream grammar: message_start seeds
// the counters, message_delta carries cumulative replacements, message_stop
// makes them authoritative.
type anthropicState struct {
	acc accumulated
	wc  wordCounter
}

func (s *anthropicState) observe(event string, payload []byte) {
	if event == "" {
		event = gjson.GetBytes(payload, "type").String()
	}
	switch event {
	case "message_start":
		r := gjson.ParseBytes(payload)
		s.acc.messageID = r.Get("message.id").String()
		s.acc.model = r.Get("message.model").String()
		s.acc.usage.Merge(providers.Usage{
			InputTokens:      int(r.Get("message.usage.input_tokens").Int()),
			OutputTokens:     int(r.Get("message.usage.output_tokens").Int()),
			CacheReadTokens:  int(r.Get("message.usage.cache_read_input_tokens").Int()),
			CacheWriteTokens: int(r.Get("message.usage.cache_creation_input_tokens").Int()),
		})
	case "content_block_delta":
		s.wc.add(gjson.GetBytes(payload, "delta.text").String())
	case "message_delta":
		r := gjson.ParseBytes(payload)
		s.acc.usage.Merge(providers.Usage{
			InputTokens:      int(r.Get("usage.input_tokens").Int()),
			OutputTokens:     int(r.Get("usage.output_tokens").Int()),
			CacheReadTokens:  int(r.Get("usage.cache_read_input_tokens").Int()),
			CacheWriteTokens: int(r.Get("usage.cache_creation_input_tokens").Int()),
		})
		if sr := r.Get("delta.stop_reason").String(); sr != "" {
			s.acc.stopReason = sr
		}
	case "message_stop":
		s.acc.complete = true
	case "error":
		s.acc.upstreamErr = errorMessage(payload)
	}
}

func (s *anthropicState) result() accumulated {
	out := s.acc
	out.words = s.wc.words
	return out
}

// chatState follows Chat Completions chunks. Counts arrive only in a
// terminal usage block, and only when the client asked for one; the [DONE]
// sentinel is handled by the meter.
type chatState struct {
	acc accumulated
	wc  wordCounter
}

func (s *chatState) observe(_ string, payload []byte) {
	r := gjson.ParseBytes(payload)
	if r.Get("error").IsObject() {
		s.acc.upstreamErr = errorMessage(payload)
		return
	}
	if s.acc.messageID == "" {
		s.acc.messageID = r.Get("id").String()
	}
	if s.acc.model == "" {
		s.acc.model = r.Get("model").String()
	}
	s.wc.add(r.Get("choices.0.delta.content").String())
	if fr := r.Get("choices.0.finish_reason").String(); fr != "" {
		s.acc.stopReason = fr
	}
	if u := r.Get("usage"); u.IsObject() {
		s.acc.usage.Merge(providers.Usage{
			InputTokens:     int(u.Get("prompt_tokens").Int()),
			OutputTokens:    int(u.Get("completion_tokens").Int()),
			CacheReadTokens: int(u.Get("prompt_tokens_details.cached_tokens").Int()),
		})
	}
}

func (s *chatState) result() accumulated {
	out := s.acc
	out.words = s.wc.words
	return out
}

// responsesState follows the Responses API event grammar, where usage rides
// on the final response.completed snapshot.
type responsesState struct {
	acc accumulated
	wc  wordCounter
}

func (s *responsesState) observe(event string, payload []byte) {
	if event == "" {
		event = gjson.GetBytes(payload, "type").String()
	}
	switch event {
	case "response.created":
		r := gjson.ParseBytes(payload)
		s.acc.messageID = r.Get("response.id").String()
		s.acc.model = r.Get("response.model").String()
	case "response.output_text.delta":
		s.wc.add(gjson.GetBytes(payload, "delta").String())
	case "response.completed":
		r := gjson.ParseBytes(payload)
		s.acc.usage.Merge(providers.Usage{
			InputTokens:     int(r.Get("response.usage.input_tokens").Int()),
			OutputTokens:    int(r.Get("response.usage.output_tokens").Int()),
			CacheReadTokens: int(r.Get("response.usage.input_tokens_details.cached_tokens").Int()),
		})
		if st := r.Get("response.status").String(); st != "" {
			s.acc.stopReason = st
		}
		s.acc.complete = true
	case "response.failed", "response.incomplete":
		if m := gjson.GetBytes(payload, "response.error.message").String(); m != "" {
			s.acc.upstreamErr = m
		} else {
			s.acc.upstreamErr = strings.TrimPrefix(event, "response.")
		}
	case "error":
		s.acc.upstreamErr = errorMessage(payload)
	}
}

func (s *responsesState) result() accumulated {
	out := s.acc
	out.words = s.wc.words
	return out
}
