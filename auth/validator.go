// Package auth validates access tokens issued by the hosted backend (Supabase).
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upb/maternal-assistant/middleware"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrMissingSubject is returned for tokens that do not identify a user,
	// such as the public anon key
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims represents the claims of a Supabase access token
type Claims struct {
	jwt.RegisteredClaims
	Email        string                 `json:"email"`
	Phone        string                 `json:"phone"`
	Role         string                 `json:"role"`
	SessionID    string                 `json:"session_id"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// Config holds configuration for Validator
type Config struct {
	Secret   string
	Issuer   string // optional
	Audience string // optional
	Leeway   time.Duration
}

// Validator validates HS256 tokens signed with the project's JWT secret
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// NewValidator creates a new token validator
func NewValidator(config Config) (*Validator, error) {
	if strings.TrimSpace(config.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if config.Leeway == 0 {
		config.Leeway = 30 * time.Second
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &Validator{
		secret: []byte(config.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// ValidateToken validates a JWT token and returns the request claims
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*middleware.Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidAudience
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}

	out := &middleware.Claims{
		Sub:       claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		Iss:       claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}
