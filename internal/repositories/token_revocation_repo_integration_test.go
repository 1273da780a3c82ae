//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRevocationRepository_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	repo := NewTokenRevocationRepository(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("single token", func(t *testing.T) {
		jti := uuid.NewString()
		require.NoError(t, repo.RevokeToken(ctx, jti, uuid.NewString(), base.Add(time.Hour), "logout"))
		require.NoError(t, repo.RevokeToken(ctx, jti, uuid.NewString(), base.Add(time.Hour), "logout"))

		revoked, err := repo.IsTokenRevoked(ctx, jti)
		require.NoError(t, err)
		assert.True(t, revoked)

		revoked, err = repo.IsTokenRevoked(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("session revocation compares whole seconds", func(t *testing.T) {
		userID := uuid.NewString()
		revokedAt := base.Add(400 * time.Millisecond)
		require.NoError(t, repo.RevokeAllUserTokens(ctx, userID, revokedAt, base.Add(time.Hour)))

		revoked, err := repo.IsSessionRevoked(ctx, userID, base.Add(-time.Second))
		require.NoError(t, err)
		assert.True(t, revoked, "a token from an earlier second is revoked")

		revoked, err = repo.IsSessionRevoked(ctx, userID, base.Add(700*time.Millisecond).Truncate(time.Second))
		require.NoError(t, err)
		assert.False(t, revoked, "a token issued later in the same second stays valid")

		revoked, err = repo.IsSessionRevoked(ctx, userID, base.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, revoked)

		revoked, err = repo.IsSessionRevoked(ctx, uuid.NewString(), base)
		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("a later revocation wins", func(t *testing.T) {
		userID := uuid.NewString()
		require.NoError(t, repo.RevokeAllUserTokens(ctx, userID, base.Add(10*time.Second), base.Add(time.Hour)))
		require.NoError(t, repo.RevokeAllUserTokens(ctx, userID, base, base.Add(time.Hour)))

		revoked, err := repo.IsSessionRevoked(ctx, userID, base.Add(5*time.Second))
		require.NoError(t, err)
		assert.True(t, revoked)
	})

	t.Run("cleanup removes expired markers", func(t *testing.T) {
		userID := uuid.NewString()
		require.NoError(t, repo.RevokeAllUserTokens(ctx, userID, base, base.Add(time.Minute)))
		require.NoError(t, repo.RevokeToken(ctx, uuid.NewString(), userID, base.Add(time.Minute), "logout"))

		removed, err := repo.CleanupExpiredTokens(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(2))

		revoked, err := repo.IsSessionRevoked(ctx, userID, base.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, revoked)
	})
}
