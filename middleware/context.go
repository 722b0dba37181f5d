package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type claimsKey struct{}

// Claims identifies the signed-in user of the mobile app
type Claims struct {
	Sub       string `json:"sub"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Iss       string `json:"iss,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// GetRequestIDFromContext returns the ID assigned by chi's RequestID
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// WithRequestID stores id where chi's GetReqID reads it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, chimiddleware.RequestIDKey, requestID)
}

// GetClaimsFromContext returns nil on unauthenticated routes
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetUserIDFromContext returns the authenticated user's subject, or ""
func GetUserIDFromContext(ctx context.Context) string {
	if claims := GetClaimsFromContext(ctx); claims != nil {
		return claims.Sub
	}
	return ""
}
