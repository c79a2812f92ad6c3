package handlers

import (
	"net/http"

	"github.com/amerfu/llmgate/internal/services/providers"
)

// RootHandler serves the service descriptor: endpoint map plus which
// providers actually hold credentials.
type RootHandler struct {
	registry *providers.Registry
}

func NewRootHandler(registry *providers.Registry) *RootHandler {
	return &RootHandler{registry: registry}
}

func (h *RootHandler) Describe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "llmgate",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"chat_completions":   "/v1/chat/completions",
			"responses":          "/v1/responses",
			"anthropic_messages": "/v1/messages",
			"models":             "/v1/models",
			"account":            "/v1/account",
			"admin":              "/admin",
			"health":             "/health",
			"metrics":            "/metrics",
		},
		"providers": map[string]bool{
			"openai":    h.registry.ProviderConfigured("openai"),
			"anthropic": h.registry.ProviderConfigured("anthropic"),
		},
	})
}
