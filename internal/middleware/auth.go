package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/key"
	"github.com/amerfu/llmgate/internal/services/providers"
)

type contextKey string

const (
	KeyContextKey     contextKey = "api_key"
	AccountContextKey contextKey = "account"
)

// KeyFromContext returns the authenticated key record.
func KeyFromContext(ctx context.Context) (*models.Key, bool) {
	k, ok := ctx.Value(KeyContextKey).(*models.Key)
	return k, ok
}

// AccountFromContext returns the owning account of the authenticated key.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(AccountContextKey).(*models.Account)
	return a, ok
}

// ClientGate authenticates bearer keys and enforces account state before a
// request can reach an upstream driver. Both lookups ride the coherent
// cache, so the hot path hits the store only on cold or invalidated entries.
type ClientGate struct {
	cache    *cache.Cache
	keys     *key.Service
	accounts *account.Service
	logger   *zap.Logger
}

func NewClientGate(c *cache.Cache, keys *key.Service, accounts *account.Service, logger *zap.Logger) *ClientGate {
	return &ClientGate{cache: c, keys: keys, accounts: accounts, logger: logger}
}

func (g *ClientGate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := extractBearer(r)
		if !ok {
			sendError(w, http.StatusUnauthorized, providers.TypeAuthentication, "Missing bearer token")
			return
		}

		k, err := g.lookupKey(r.Context(), raw)
		if err != nil {
			if errors.Is(err, key.ErrKeyNotFound) {
				sendError(w, http.StatusUnauthorized, providers.TypeAuthentication, "Invalid API key")
				return
			}
			g.logger.Error("Key lookup failed", zap.Error(err))
			sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Authentication backend unavailable")
			return
		}
		if !k.IsActive {
			sendError(w, http.StatusForbidden, providers.TypeAuthorization, "API key is disabled")
			return
		}

		acct, err := g.lookupAccount(r.Context(), k.UserID)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				// A key pointing at no account is a referential integrity
				// failure on our side, never the client's fault.
				g.logger.Error("Key references missing account",
					zap.String("user_id", k.UserID),
					zap.String("key_name", k.KeyName))
				sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Account record missing for key")
				return
			}
			g.logger.Error("Account lookup failed",
				zap.String("user_id", k.UserID),
				zap.Error(err))
			sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Authentication backend unavailable")
			return
		}
		if !acct.IsActive {
			sendError(w, http.StatusForbidden, providers.TypeAuthorization, "Account is disabled")
			return
		}
		if acct.IsOverBudget() {
			sendError(w, http.StatusTooManyRequests, providers.TypeBudgetExceeded,
				fmt.Sprintf("Budget exceeded: spent $%.6f of $%.6f", acct.SpentUSD, acct.BudgetUSD))
			return
		}

		ctx := context.WithValue(r.Context(), KeyContextKey, k)
		ctx = context.WithValue(ctx, AccountContextKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *ClientGate) lookupKey(ctx context.Context, raw string) (*models.Key, error) {
	v, err := g.cache.Get(ctx, cache.NamespaceKey, raw, func(ctx context.Context) (interface{}, error) {
		return g.keys.GetByKey(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Key), nil
}

func (g *ClientGate) lookupAccount(ctx context.Context, userID string) (*models.Account, error) {
	v, err := g.cache.Get(ctx, cache.NamespaceAccount, userID, func(ctx context.Context) (interface{}, error) {
		return g.accounts.GetByUserID(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Account), nil
}

// extractBearer pulls the token out of the Authorization header.
func extractBearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// sendError writes the gateway's error envelope.
func sendError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
		},
	})
}
