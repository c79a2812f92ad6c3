package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/providers"
)

// AdminGate guards the management surface with the static admin secret. No
// account is associated; the bearer either is the secret or it is not.
type AdminGate struct {
	adminKey string
	logger   *zap.Logger
}

func NewAdminGate(adminKey string, logger *zap.Logger) *AdminGate {
	return &AdminGate{adminKey: adminKey, logger: logger}
}

func (g *AdminGate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearer(r)
		if !ok {
			sendError(w, http.StatusUnauthorized, providers.TypeAuthentication, "Missing admin key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(raw), []byte(g.adminKey)) != 1 {
			g.logger.Warn("Rejected admin request with invalid key",
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr))
			sendError(w, http.StatusUnauthorized, providers.TypeAuthentication, "Invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
