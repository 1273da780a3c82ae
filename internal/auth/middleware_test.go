package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRevocationChecker struct {
	revokedJTI    map[string]bool
	sessionCutoff map[string]time.Time
	err           error
}

func (m *mockRevocationChecker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.revokedJTI[jti], nil
}

func (m *mockRevocationChecker) IsSessionRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	cutoff, ok := m.sessionCutoff[userID]
	return ok && issuedAt.Before(cutoff.Truncate(time.Second)), nil
}

func newTestAuthenticator(t *testing.T, checker TokenRevocationChecker) (*Authenticator, *TokenManager) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthenticator(tm, checker, logger), tm
}

func claimsEcho(seen **models.TokenClaims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestParseClaims_AnonymousPassesThrough(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil)

	var seen *models.TokenClaims
	rec := httptest.NewRecorder()
	a.ParseClaims(claimsEcho(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)
}

func TestParseClaims_InjectsValidToken(t *testing.T) {
	a, tm := newTestAuthenticator(t, &mockRevocationChecker{})
	token, _, err := tm.GenerateAccessToken(testAccount())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	var seen *models.TokenClaims
	a.ParseClaims(claimsEcho(&seen)).ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "acc-1", seen.UserID)
}

func TestParseClaims_MalformedHeaderIsAnonymous(t *testing.T) {
	a, _ := newTestAuthenticator(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")

	var seen *models.TokenClaims
	a.ParseClaims(claimsEcho(&seen)).ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, seen)
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		a, _ := newTestAuthenticator(t, nil)
		rec := httptest.NewRecorder()
		var seen *models.TokenClaims
		a.RequireAuth(claimsEcho(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revoked jti", func(t *testing.T) {
		checker := &mockRevocationChecker{revokedJTI: map[string]bool{}}
		a, tm := newTestAuthenticator(t, checker)
		token, claims, err := tm.GenerateAccessToken(testAccount())
		require.NoError(t, err)
		checker.revokedJTI[claims.ID] = true

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		var seen *models.TokenClaims
		a.RequireAuth(claimsEcho(&seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session revoked after issue", func(t *testing.T) {
		checker := &mockRevocationChecker{sessionCutoff: map[string]time.Time{}}
		a, tm := newTestAuthenticator(t, checker)
		token, claims, err := tm.GenerateAccessToken(testAccount())
		require.NoError(t, err)
		checker.sessionCutoff["acc-1"] = claims.IssuedAt.Time.Add(time.Second)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		var seen *models.TokenClaims
		a.RequireAuth(claimsEcho(&seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("session revoked earlier in the same second", func(t *testing.T) {
		checker := &mockRevocationChecker{sessionCutoff: map[string]time.Time{}}
		a, tm := newTestAuthenticator(t, checker)
		token, claims, err := tm.GenerateAccessToken(testAccount())
		require.NoError(t, err)
		checker.sessionCutoff["acc-1"] = claims.IssuedAt.Time.Add(500 * time.Millisecond)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		var seen *models.TokenClaims
		a.RequireAuth(claimsEcho(&seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revocation store down", func(t *testing.T) {
		a, tm := newTestAuthenticator(t, &mockRevocationChecker{err: errors.New("db down")})
		token, _, err := tm.GenerateAccessToken(testAccount())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		var seen *models.TokenClaims
		a.RequireAuth(claimsEcho(&seen)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireStaff(t *testing.T) {
	handler := RequireStaff(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		claims *models.TokenClaims
		want   int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"plain user", &models.TokenClaims{UserID: "u", Role: models.RoleUser}, http.StatusForbidden},
		{"staff", &models.TokenClaims{UserID: "s", Role: models.RoleStaff}, http.StatusNoContent},
		{"admin", &models.TokenClaims{UserID: "a", Role: models.RoleAdmin}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
