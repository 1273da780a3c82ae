//go:build integration

package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRepository_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	t.Run("create and lookup is case-insensitive", func(t *testing.T) {
		account := seedAccount(t, repo, "Lookup@Example.com")

		found, err := repo.GetByEmail(ctx, "lookup@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, found.ID)
		assert.False(t, found.IsActive)
		assert.Equal(t, models.RoleUser, found.Role)

		_, err = repo.Create(ctx, &models.Account{Email: "Lookup@Example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("failed attempts lock at threshold", func(t *testing.T) {
		account := seedAccount(t, repo, "lockout@example.com")
		lockUntil := time.Now().Add(30 * time.Minute).Truncate(time.Microsecond)

		var state *models.AccountSecurityState
		for i := 0; i < 4; i++ {
			var err error
			state, err = repo.IncrementFailedAttempts(ctx, account.ID, "198.51.100.4", 5, lockUntil)
			require.NoError(t, err)
		}
		assert.Equal(t, 4, state.FailedAttemptCount)
		assert.Nil(t, state.LockedUntil)

		state, err := repo.IncrementFailedAttempts(ctx, account.ID, "", 5, lockUntil)
		require.NoError(t, err)
		assert.Equal(t, 5, state.FailedAttemptCount)
		require.NotNil(t, state.LockedUntil)
		assert.True(t, lockUntil.Equal(*state.LockedUntil))
		require.NotNil(t, state.LastKnownIP)
		assert.Equal(t, "198.51.100.4", *state.LastKnownIP)

		require.NoError(t, repo.ResetFailedAttempts(ctx, account.ID, "198.51.100.5"))
		state, err = repo.GetSecurityState(ctx, account.ID)
		require.NoError(t, err)
		assert.Zero(t, state.FailedAttemptCount)
		assert.Nil(t, state.LockedUntil)
		assert.Equal(t, "198.51.100.5", *state.LastKnownIP)
	})

	t.Run("concurrent failures are never lost", func(t *testing.T) {
		account := seedAccount(t, repo, "concurrent@example.com")
		lockUntil := time.Now().Add(time.Hour)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.IncrementFailedAttempts(ctx, account.ID, "", 5, lockUntil)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		state, err := repo.GetSecurityState(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, state.FailedAttemptCount)
	})

	t.Run("activation code compare-and-set", func(t *testing.T) {
		account := seedAccount(t, repo, "code@example.com")
		issuedAt := time.Now().Truncate(time.Microsecond)

		code, err := repo.GetActivationCode(ctx, account.ID)
		require.NoError(t, err)
		assert.Nil(t, code)

		require.NoError(t, repo.SaveActivationCode(ctx, account.ID, "042917", issuedAt))
		code, err = repo.GetActivationCode(ctx, account.ID)
		require.NoError(t, err)
		require.NotNil(t, code)
		assert.Equal(t, "042917", code.Code)
		assert.Zero(t, code.AttemptCount)

		attempts, err := repo.CompareAndIncrementCodeAttempts(ctx, account.ID, code.IssuedAt, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)

		_, err = repo.CompareAndIncrementCodeAttempts(ctx, account.ID, code.IssuedAt, 0)
		assert.ErrorIs(t, err, models.ErrConflict)

		require.NoError(t, repo.ClearActivationCode(ctx, account.ID))
		require.NoError(t, repo.ClearActivationCode(ctx, account.ID))
		code, err = repo.GetActivationCode(ctx, account.ID)
		require.NoError(t, err)
		assert.Nil(t, code)
	})

	t.Run("activate", func(t *testing.T) {
		account := seedAccount(t, repo, "activate@example.com")
		require.NoError(t, repo.SaveActivationCode(ctx, account.ID, "123456", time.Now()))
		require.NoError(t, repo.Activate(ctx, account.ID))

		found, err := repo.GetByID(ctx, account.ID)
		require.NoError(t, err)
		assert.True(t, found.IsActive)
		assert.True(t, found.EmailVerified)

		code, err := repo.GetActivationCode(ctx, account.ID)
		require.NoError(t, err)
		assert.Nil(t, code)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
