// Package auth verifies the bearer tokens issued by the identity service.
// Token issuance happens elsewhere; this service only validates signatures
// and extracts the actor.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"tourmarket/internal/common/middleware"
)

// Config holds token verification configuration
type Config struct {
	Secret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"AUTH_JWT_ISSUER" default:"tourmarket-identity"`
}

// Claims are the token claims this service reads
type Claims struct {
	Role    string `json:"role"`
	AgentID string `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// NewValidator returns a TokenValidator that checks HS256 signatures and
// maps claims onto an Actor.
func NewValidator(cfg Config) middleware.TokenValidator {
	return func(ctx context.Context, token string) (middleware.Actor, error) {
		var claims Claims
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
		if err != nil {
			return middleware.Actor{}, err
		}
		if !parsed.Valid {
			return middleware.Actor{}, errors.New("invalid token")
		}

		role := middleware.Role(claims.Role)
		switch role {
		case middleware.RoleBuyer, middleware.RoleAgent, middleware.RoleAdmin:
		default:
			return middleware.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
		}
		if role == middleware.RoleAgent && claims.AgentID == "" {
			return middleware.Actor{}, errors.New("agent token missing agent_id")
		}

		return middleware.Actor{
			UserID:  claims.Subject,
			AgentID: claims.AgentID,
			Role:    role,
		}, nil
	}
}
