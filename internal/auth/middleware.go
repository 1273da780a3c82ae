package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// TokenRevocationChecker defines the interface for checking if tokens are revoked
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	IsSessionRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// Authenticator resolves bearer tokens into claims.
type Authenticator struct {
	tm      *TokenManager
	revoked TokenRevocationChecker
	logger  *slog.Logger
}

func NewAuthenticator(tm *TokenManager, revoked TokenRevocationChecker, logger *slog.Logger) *Authenticator {
	return &Authenticator{tm: tm, revoked: revoked, logger: logger}
}

// authenticate returns the claims of a valid, unrevoked bearer token, or nil.
// Revocation lookups that fail are treated as revoked.
func (a *Authenticator) authenticate(r *http.Request) *models.TokenClaims {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil
	}

	claims, err := a.tm.ValidateToken(parts[1])
	if err != nil {
		return nil
	}

	if a.revoked == nil {
		return claims
	}

	ctx := r.Context()
	if claims.ID != "" {
		revoked, err := a.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			a.logger.Error("token revocation check failed", slog.Any("error", err))
			return nil
		}
		if revoked {
			return nil
		}
	}

	if claims.IssuedAt != nil {
		revoked, err := a.revoked.IsSessionRevoked(ctx, claims.UserID, claims.IssuedAt.Time)
		if err != nil {
			a.logger.Error("session revocation check failed", slog.Any("error", err))
			return nil
		}
		if revoked {
			return nil
		}
	}

	return claims
}

// ParseClaims attaches the caller's claims to the context when a valid token
// is present. Requests without one pass through as anonymous.
func (a *Authenticator) ParseClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := a.authenticate(r); claims != nil {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests that carry no valid token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims == nil {
			claims = a.authenticate(r)
		}
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireStaff restricts a route to staff and admin tokens. Must run after
// RequireAuth.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		if claims == nil {
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		if !claims.IsPrivileged() {
			pkghttp.WriteForbidden(w, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
