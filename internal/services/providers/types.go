package providers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
)

// Family identifies one upstream endpoint family. The client-facing path
// fixes the family; model names play no part in routing.
type Family string

const (
	FamilyOpenAIChat        Family = "openai_chat"
	FamilyOpenAIResponses   Family = "openai_responses"
	FamilyAnthropicMessages Family = "anthropic_messages"
)

// Usage is the token accounting for a single completion, taken from a unary
// response body or reconstructed from a stream.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
}

// TotalTokens is the sum the usage log stores alongside the raw counts.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// IsZero reports whether no counter was ever populated.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 &&
		u.CacheReadTokens == 0 && u.CacheWriteTokens == 0
}

// Merge overlays the non-zero fields of o. Streams report usage
// incrementally and later events carry the authoritative totals, so a newer
// non-zero count always wins.
func (u *Usage) Merge(o Usage) {
	if o.InputTokens > 0 {
		u.InputTokens = o.InputTokens
	}
	if o.OutputTokens > 0 {
		u.OutputTokens = o.OutputTokens
	}
	if o.CacheReadTokens > 0 {
		u.CacheReadTokens = o.CacheReadTokens
	}
	if o.CacheWriteTokens > 0 {
		u.CacheWriteTokens = o.CacheWriteTokens
	}
}

// Driver forwards request bodies to one upstream endpoint family and knows
// how to read that family's usage accounting.
type Driver interface {
	Family() Family

	// Provider names the upstream vendor for logs and error messages.
	Provider() string

	// Configured reports whether the gateway holds credentials for this
	// driver's upstream.
	Configured() bool

	// Forward sends the raw request body upstream. The body's stream flag is
	// forced to match the dispatch mode so the upstream wire format cannot
	// diverge from how the gateway will read the response. The caller owns
	// resp.Body.
	Forward(ctx context.Context, body []byte, stream bool) (*http.Response, error)

	// UnaryUsage extracts the usage block from a complete response body.
	// Fields the body does not carry stay zero.
	UnaryUsage(body []byte) Usage
}

// forceStreamFlag makes the body's stream field agree with how the request
// is dispatched. Bodies that already agree pass through untouched; other
// fields keep their exact bytes either way.
func forceStreamFlag(body []byte, stream bool) []byte {
	res := gjson.GetBytes(body, "stream")
	if res.Bool() == stream && (res.Exists() || !stream) {
		return body
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	if stream {
		obj["stream"] = json.RawMessage("true")
	} else {
		obj["stream"] = json.RawMessage("false")
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}
