package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/upb/maternal-assistant/internal/observability"
	"github.com/upb/maternal-assistant/utils"
)

const authRealm = "maternal-assistant"

// TokenValidator turns a bearer access token into the caller's claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware guards routes that act on behalf of a signed-in user
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// RequireAuth rejects requests without a valid bearer token. On success the
// claims and a logger tagged with the user id are placed on the context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.LoggerFromContext(ctx, m.logger)

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			logger.Debug("request without bearer token")
			challenge(w, "")
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			logger.Warn("rejected access token", zap.Error(err))
			challenge(w, "invalid_token")
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		logger = logger.With(zap.String("user_id", claims.Sub))
		ctx = observability.ContextWithLogger(WithClaims(ctx, claims), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// challenge sets the RFC 6750 WWW-Authenticate header
func challenge(w http.ResponseWriter, errCode string) {
	v := `Bearer realm="` + authRealm + `"`
	if errCode != "" {
		v += `, error="` + errCode + `"`
	}
	w.Header().Set("WWW-Authenticate", v)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
