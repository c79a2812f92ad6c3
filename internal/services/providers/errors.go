package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Client-visible error types. Every non-2xx response the gateway originates
// carries exactly one of these in its error envelope.
const (
	TypeAuthentication = "authentication_error"
	TypeAuthorization  = "authorization_error"
	TypeBudgetExceeded = "budget_exceeded"
	TypeInvalidRequest = "invalid_request_error"
	TypeNotFound       = "not_found_error"
	TypeUpstreamAuth   = "upstream_auth_error"
	TypeRateLimit      = "rate_limit_exceeded"
	TypeTimeout        = "timeout_error"
	TypeUnavailable    = "service_unavailable"
	TypeInternal       = "internal_error"
)

// maxErrorBody caps how much of an upstream error body is inspected so a
// hostile upstream cannot balloon gateway responses or logs.
const maxErrorBody = 4096

// GatewayError is an error safe to hand back to the client: the upstream
// detail it carries has already been filtered and capped.
type GatewayError struct {
	Status  int
	Type    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewGatewayError builds an error the handlers can emit directly.
func NewGatewayError(status int, errType, message string) *GatewayError {
	return &GatewayError{Status: status, Type: errType, Message: message}
}

// ErrNotConfigured is returned when a request targets a provider the gateway
// holds no credentials for. The client sees 401 rather than 500 because the
// request itself was fine.
func ErrNotConfigured(provider string) *GatewayError {
	return &GatewayError{
		Status:  http.StatusUnauthorized,
		Type:    TypeUpstreamAuth,
		Message: fmt.Sprintf("no %s credentials are configured on the gateway", provider),
	}
}

// FromUpstreamStatus maps an upstream non-2xx status to the error the client
// sees. Upstream credential rejections never echo the upstream body: the
// gateway's provider keys are not the client's business.
func FromUpstreamStatus(provider string, status int, body []byte) *GatewayError {
	switch {
	case status == http.StatusBadRequest:
		return &GatewayError{http.StatusBadRequest, TypeInvalidRequest, upstreamMessage(provider, body)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &GatewayError{http.StatusUnauthorized, TypeUpstreamAuth,
			fmt.Sprintf("upstream %s rejected the gateway credentials", provider)}
	case status == http.StatusNotFound:
		return &GatewayError{http.StatusNotFound, TypeNotFound, upstreamMessage(provider, body)}
	case status == http.StatusRequestTimeout:
		return &GatewayError{http.StatusGatewayTimeout, TypeTimeout,
			fmt.Sprintf("upstream %s timed out", provider)}
	case status == http.StatusTooManyRequests:
		return &GatewayError{http.StatusTooManyRequests, TypeRateLimit, upstreamMessage(provider, body)}
	case status >= 500:
		return &GatewayError{http.StatusServiceUnavailable, TypeUnavailable,
			fmt.Sprintf("upstream %s returned status %d", provider, status)}
	default:
		return &GatewayError{http.StatusInternalServerError, TypeInternal,
			fmt.Sprintf("upstream %s returned unexpected status %d", provider, status)}
	}
}

// FromTransportError maps a failed round trip. Deadline expiry becomes 504,
// anything else on the wire becomes 503.
func FromTransportError(provider string, err error) *GatewayError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &GatewayError{http.StatusGatewayTimeout, TypeTimeout,
			fmt.Sprintf("upstream %s timed out", provider)}
	}
	return &GatewayError{http.StatusServiceUnavailable, TypeUnavailable,
		fmt.Sprintf("upstream %s is unreachable", provider)}
}

// upstreamMessage pulls a human-readable message out of an upstream error
// body. Both vendors nest it under error.message; fall back to the raw body
// when they do not.
func upstreamMessage(provider string, body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if m := gjson.GetBytes(body, "error.message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	if m := gjson.GetBytes(body, "message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return fmt.Sprintf("upstream %s returned an empty error body", provider)
	}
	return s
}
