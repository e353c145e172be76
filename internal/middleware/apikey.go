package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"harmoniq/internal/domain"
)

type apiKeyContextKey struct{}

var apiKeyKey = apiKeyContextKey{}

// APIKeyResolver looks up a stored key by the hash of its plaintext.
type APIKeyResolver func(ctx context.Context, keyHash string) (*domain.APIKey, error)

// HashAPIKey returns the hex SHA-256 of a plaintext key. Only the hash is
// stored or compared.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plaintext)))
	return hex.EncodeToString(sum[:])
}

// APIKeyAuth authenticates requests with a bearer API key. The resolved key
// record is stored in the request context for attribution and rate limiting.
func APIKeyAuth(resolve APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization", http.StatusUnauthorized)
				return
			}
			key, err := resolve(r.Context(), HashAPIKey(parts[1]))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "authorization unavailable", http.StatusServiceUnavailable)
				return
			}
			if key.Disabled {
				http.Error(w, "api key disabled", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAPIKey(r.Context(), key)))
		})
	}
}

// APIKeyFromContext returns the authenticated key, or nil on public routes.
func APIKeyFromContext(ctx context.Context) *domain.APIKey {
	if v, ok := ctx.Value(apiKeyKey).(*domain.APIKey); ok {
		return v
	}
	return nil
}

func ContextWithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	if key == nil {
		return ctx
	}
	return context.WithValue(ctx, apiKeyKey, key)
}
