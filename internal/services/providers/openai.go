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
	openAIChatPath      = "/v1/chat/completions"
	openAIResponsesPath = "/v1/responses"
)

// OpenAIDriver serves both OpenAI-backed families. Chat Completions and the
// Responses API share credentials and transport and differ only in path and
// the shape of their usage block.
type OpenAIDriver struct {
	family  Family
	path    string
	apiKey  string
	baseURL string
	unary   *http.Client
	stream  *http.Client
}

func NewOpenAIDriver(family Family, cfg config.ProviderConfig, unary, stream *http.Client) *OpenAIDriver {
	path := openAIChatPath
	if family == FamilyOpenAIResponses {
		path = openAIResponsesPath
	}
	return &OpenAIDriver{
		family:  family,
		path:    path,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		unary:   unary,
		stream:  stream,
	}
}

func (d *OpenAIDriver) Family() Family { return d.family }

func (d *OpenAIDriver) Provider() string { return "openai" }

func (d *OpenAIDriver) Configured() bool { return d.apiKey != "" }

func (d *OpenAIDriver) Forward(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	body = forceStreamFlag(body, stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+d.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	client := d.unary
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		client = d.stream
	}
	return client.Do(req)
}

// UnaryUsage reads the usage block of a complete response. Chat Completions
// reports prompt/completion counts with cached tokens nested under
// prompt_tokens_details; the Responses API renamed both top-level counts and
// moved the cache detail under input_tokens_details.
func (d *OpenAIDriver) UnaryUsage(body []byte) Usage {
	if d.family == FamilyOpenAIResponses {
		return Usage{
			InputTokens:     int(gjson.GetBytes(body, "usage.input_tokens").Int()),
			OutputTokens:    int(gjson.GetBytes(body, "usage.output_tokens").Int()),
			CacheReadTokens: int(gjson.GetBytes(body, "usage.input_tokens_details.cached_tokens").Int()),
		}
	}
	return Usage{
		InputTokens:     int(gjson.GetBytes(body, "usage.prompt_tokens").Int()),
		OutputTokens:    int(gjson.GetBytes(body, "usage.completion_tokens").Int()),
		CacheReadTokens: int(gjson.GetBytes(body, "usage.prompt_tokens_details.cached_tokens").Int()),
	}
}
