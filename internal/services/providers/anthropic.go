package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/amerfu/llmgate/internal/config"
)

const (
	anthropicMessagesPath = "/v1/messages"

	// anthropicVersion is pinned so upstream API evolution cannot silently
	// change the wire format the meter was written against.
	anthropicVersion = "2023-06-01"
)

// AnthropicDriver forwards to the Messages API.
type AnthropicDriver struct {
	apiKey  string
	baseURL string
	unary   *http.Client
	stream  *http.Client
}

func NewAnthropicDriver(cfg config.ProviderConfig, unary, stream *http.Client) *AnthropicDriver {
	return &AnthropicDriver{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		unary:   unary,
		stream:  stream,
	}
}

func (d *AnthropicDriver) Family() Family { return FamilyAnthropicMessages }

func (d *AnthropicDriver) Provider() string { return "anthropic" }

func (d *AnthropicDriver) Configured() bool { return d.apiKey != "" }

func (d *AnthropicDriver) Forward(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	body = forceStreamFlag(body, stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+anthropicMessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", d.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := d.unary
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		client = d.stream
	}
	return client.Do(req)
}

// UnaryUsage reads the Messages usage block. Anthropic's input_tokens
// excludes cache traffic; cache reads and writes are separate counters with
// their own rates.
func (d *AnthropicDriver) UnaryUsage(body []byte) Usage {
	return Usage{
		InputTokens:      int(gjson.GetBytes(body, "usage.input_tokens").Int()),
		OutputTokens:     int(gjson.GetBytes(body, "usage.output_tokens").Int()),
		CacheReadTokens:  int(gjson.GetBytes(body, "usage.cache_read_input_tokens").Int()),
		CacheWriteTokens: int(gjson.GetBytes(body, "usage.cache_creation_input_tokens").Int()),
	}
}
