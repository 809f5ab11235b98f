package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/confidant-vault/confidant/internal/platform/httpx"
	"github.com/confidant-vault/confidant/internal/shared"
)

// Middleware resolves bearer tokens into requester claims.
type Middleware struct {
	tokens *TokenManager
	logger *slog.Logger
}

// NewMiddleware constructs a Middleware.
func NewMiddleware(tokens *TokenManager, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// RequireAuth rejects requests without a resolvable bearer token and stores
// the claims in the request context for the handlers downstream.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.ErrWrongCredentials)
			return
		}
		claims, err := m.tokens.Resolve(r.Context(), token)
		if err != nil {
			m.logger.Warn("token resolution failed", slog.Any("error", err))
			httpx.RespondError(w, shared.ErrWrongCredentials)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
