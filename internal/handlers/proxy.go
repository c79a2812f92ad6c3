package handlers

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/middleware"
	"github.com/amerfu/llmgate/internal/services/billing"
	"github.com/amerfu/llmgate/internal/services/providers"
	"github.com/amerfu/llmgate/internal/services/streaming"
)

// settleTimeout bounds the billing work that runs after the upstream
// exchange. It is detached from the request context so a client disconnect
// cannot skip the debit.
const settleTimeout = 10 * time.Second

// ProxyHandler serves the three completion endpoints. The route fixes the
// endpoint family; model names never influence where a request goes.
type ProxyHandler struct {
	registry    *providers.Registry
	ledger      *billing.Ledger
	idleTimeout time.Duration
	logger      *zap.Logger
}

func NewProxyHandler(registry *providers.Registry, ledger *billing.Ledger, idleTimeout time.Duration, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		registry:    registry,
		ledger:      ledger,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// ChatCompletions proxies to the OpenAI Chat Completions API.
func (h *ProxyHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, providers.FamilyOpenAIChat)
}

// Responses proxies to the OpenAI Responses API.
func (h *ProxyHandler) Responses(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, providers.FamilyOpenAIResponses)
}

// Messages proxies to the Anthropic Messages API.
func (h *ProxyHandler) Messages(w http.ResponseWriter, r *http.Request) {
	h.proxy(w, r, providers.FamilyAnthropicMessages)
}

func (h *ProxyHandler) proxy(w http.ResponseWriter, r *http.Request, family providers.Family) {
	start := time.Now()

	key, ok := middleware.KeyFromContext(r.Context())
	if !ok {
		h.logger.Error("Proxy handler reached without an authenticated key",
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Internal server error")
		return
	}
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		h.logger.Error("Proxy handler reached without an account",
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Internal server error")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "failed to read request body")
		return
	}
	if !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "request body is not valid JSON")
		return
	}

	model := gjson.GetBytes(body, "model").String()
	if model == "" {
		writeError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "model is required")
		return
	}
	if msg := validateShape(family, body); msg != "" {
		writeError(w, http.StatusBadRequest, providers.TypeInvalidRequest, msg)
		return
	}

	if !key.IsModelAllowed(model) {
		writeError(w, http.StatusForbidden, providers.TypeAuthorization,
			"Key is not allowed to use model: "+model)
		return
	}

	stream := gjson.GetBytes(body, "stream").Bool()

	driver, ok := h.registry.Driver(family)
	if !ok {
		h.logger.Error("No driver registered for family", zap.String("family", string(family)))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Internal server error")
		return
	}

	entry := billing.Entry{
		UserID:         account.UserID,
		Key:            key.Key,
		Model:          model,
		Endpoint:       r.URL.Path,
		IPAddress:      clientIP(r),
		RequestPayload: body,
	}

	// Validation is done; from here every outcome produces a usage record.
	if !driver.Configured() {
		gwErr := providers.ErrNotConfigured(driver.Provider())
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}

	if stream {
		h.streamUpstream(w, r, family, driver, entry, body, start)
		return
	}
	h.unaryUpstream(w, r, family, driver, entry, body, start)
}

func (h *ProxyHandler) unaryUpstream(w http.ResponseWriter, r *http.Request, family providers.Family, driver providers.Driver, entry billing.Entry, body []byte, start time.Time) {
	resp, err := driver.Forward(r.Context(), body, false)
	if err != nil {
		gwErr := providers.FromTransportError(driver.Provider(), err)
		h.logger.Error("Upstream request failed",
			zap.String("provider", driver.Provider()),
			zap.String("model", entry.Model),
			zap.Error(err))
		middleware.RecordUpstreamError(driver.Provider(), 0)
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		gwErr := providers.FromTransportError(driver.Provider(), err)
		h.logger.Error("Failed to read upstream response",
			zap.String("provider", driver.Provider()),
			zap.String("model", entry.Model),
			zap.Error(err))
		middleware.RecordUpstreamError(driver.Provider(), 0)
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := providers.FromUpstreamStatus(driver.Provider(), resp.StatusCode, respBody)
		h.logger.Warn("Upstream returned error status",
			zap.String("provider", driver.Provider()),
			zap.String("model", entry.Model),
			zap.Int("upstream_status", resp.StatusCode))
		middleware.RecordUpstreamError(driver.Provider(), resp.StatusCode)
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}

	entry.Usage = driver.UnaryUsage(respBody)
	entry.ResponsePayload = respBody
	entry.ProcessingMS = msSince(start)
	h.settle(r, entry)
	middleware.RecordCompletion(string(family), entry.Model, "success", time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(respBody); err != nil {
		h.logger.Debug("Client went away before the response was written",
			zap.String("model", entry.Model))
	}
}

func (h *ProxyHandler) streamUpstream(w http.ResponseWriter, r *http.Request, family providers.Family, driver providers.Driver, entry billing.Entry, body []byte, start time.Time) {
	sink, ok := w.(streaming.StreamSink)
	if !ok {
		h.logger.Error("Response writer cannot stream",
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Streaming not supported")
		return
	}

	resp, err := driver.Forward(r.Context(), body, true)
	if err != nil {
		gwErr := providers.FromTransportError(driver.Provider(), err)
		h.logger.Error("Upstream stream request failed",
			zap.String("provider", driver.Provider()),
			zap.String("model", entry.Model),
			zap.Error(err))
		middleware.RecordUpstreamError(driver.Provider(), 0)
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		gwErr := providers.FromUpstreamStatus(driver.Provider(), resp.StatusCode, errBody)
		h.logger.Warn("Upstream rejected stream request",
			zap.String("provider", driver.Provider()),
			zap.String("model", entry.Model),
			zap.Int("upstream_status", resp.StatusCode))
		middleware.RecordUpstreamError(driver.Provider(), resp.StatusCode)
		h.failRequest(w, r, family, entry, start, gwErr)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sink.Flush()

	meter := streaming.NewMeter(family, h.idleTimeout, h.logger)
	result := meter.Pump(r.Context(), resp.Body, sink)

	// Partial streams bill the usage that was metered; the disposition
	// lands in error_message alongside.
	entry.Usage = result.Usage
	entry.Estimated = result.Estimated
	entry.ErrorMessage = result.ErrorMessage()
	entry.ResponsePayload = result.Snapshot()
	entry.ProcessingMS = msSince(start)
	h.settle(r, entry)

	status := "success"
	if entry.ErrorMessage != "" {
		status = "error"
	}
	middleware.RecordCompletion(string(family), entry.Model, status, time.Since(start).Seconds())
}

// failRequest settles a request that reached a driver but produced no
// billable completion, then emits the error envelope.
func (h *ProxyHandler) failRequest(w http.ResponseWriter, r *http.Request, family providers.Family, entry billing.Entry, start time.Time, gwErr *providers.GatewayError) {
	entry.Failed = true
	entry.ErrorMessage = gwErr.Message
	entry.ProcessingMS = msSince(start)
	h.settle(r, entry)
	middleware.RecordCompletion(string(family), entry.Model, "error", 0)
	writeError(w, gwErr.Status, gwErr.Type, gwErr.Message)
}

// settle runs the ledger on a context detached from the client connection.
func (h *ProxyHandler) settle(r *http.Request, entry billing.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), settleTimeout)
	defer cancel()
	if _, err := h.ledger.Settle(ctx, entry); err != nil {
		h.logger.Error("Failed to settle request",
			zap.String("user_id", entry.UserID),
			zap.String("model", entry.Model),
			zap.Error(err))
	}
}

// validateShape enforces the per-family required fields the upstreams would
// reject anyway, so malformed requests never spend an upstream call.
func validateShape(family providers.Family, body []byte) string {
	switch family {
	case providers.FamilyOpenAIChat:
		msgs := gjson.GetBytes(body, "messages")
		if !msgs.IsArray() || len(msgs.Array()) == 0 {
			return "messages is required and must not be empty"
		}
	case providers.FamilyOpenAIResponses:
		if !gjson.GetBytes(body, "input").Exists() {
			return "input is required"
		}
	case providers.FamilyAnthropicMessages:
		msgs := gjson.GetBytes(body, "messages")
		if !msgs.IsArray() || len(msgs.Array()) == 0 {
			return "messages is required and must not be empty"
		}
		if gjson.GetBytes(body, "max_tokens").Int() <= 0 {
			return "max_tokens is required"
		}
	}
	return ""
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
