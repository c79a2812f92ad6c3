package providers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/config"
)

// Registry holds the one driver per endpoint family and the two HTTP clients
// they share: a unary client bounded by the whole-request timeout, and a
// streaming client that only bounds time to first byte because response
// bodies legitimately stay open for minutes.
type Registry struct {
	drivers map[Family]Driver
	logger  *zap.Logger
}

func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	unary := &http.Client{Timeout: cfg.Server.RequestTimeout}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Server.RequestTimeout
	stream := &http.Client{Transport: transport}

	r := &Registry{
		drivers: make(map[Family]Driver),
		logger:  logger,
	}
	r.register(NewOpenAIDriver(FamilyOpenAIChat, cfg.Providers.OpenAI, unary, stream))
	r.register(NewOpenAIDriver(FamilyOpenAIResponses, cfg.Providers.OpenAI, unary, stream))
	r.register(NewAnthropicDriver(cfg.Providers.Anthropic, unary, stream))
	return r
}

func (r *Registry) register(d Driver) {
	r.drivers[d.Family()] = d
	if !d.Configured() {
		r.logger.Warn("Provider has no credentials, its endpoints will reject requests",
			zap.String("provider", d.Provider()),
			zap.String("family", string(d.Family())))
	}
}

// Driver returns the driver for a family. Families are fixed at startup, so
// a miss is a routing bug, not a runtime condition.
func (r *Registry) Driver(f Family) (Driver, bool) {
	d, ok := r.drivers[f]
	return d, ok
}

// ProviderConfigured reports whether any driver for the named vendor holds
// credentials. The model listing uses this to hide models nobody can call.
func (r *Registry) ProviderConfigured(provider string) bool {
	for _, d := range r.drivers {
		if d.Provider() == provider {
			return d.Configured()
		}
	}
	return false
}
