package services_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/counter"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "SecureP@ss123"

type testEnv struct {
	clock      *clockwork.FakeClock
	repo       *services.FakeAccountRepository
	store      *counter.MemoryStore
	audit      *services.RecordingAuditSink
	notifier   *services.MockCodeNotifier
	revoke     *services.MockTokenRevocationRepository
	tokens     *auth.TokenManager
	lockout    *services.LockoutService
	activation *services.ActivationService
	limiter    *services.RateLimitService
	accounts   *services.AccountService
	auth       *services.AuthService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    clockwork.NewFakeClockAt(epoch),
		repo:     services.NewFakeAccountRepository(),
		audit:    &services.RecordingAuditSink{},
		notifier: &services.MockCodeNotifier{},
		revoke:   &services.MockTokenRevocationRepository{},
	}
	logger := discardLogger()

	env.store = counter.NewMemoryStore(env.clock)
	env.tokens = auth.NewTokenManager("test-secret-32-characters-long!!", 15*time.Minute, env.clock)
	env.lockout = services.NewLockoutService(env.repo, services.LockoutConfig{
		Threshold: 5,
		Duration:  30 * time.Minute,
	}, env.audit, env.clock, logger)
	env.activation = services.NewActivationService(env.repo, services.ActivationConfig{
		CodeTTL:     30 * time.Minute,
		MaxAttempts: 5,
	}, env.clock, logger)
	env.limiter = services.NewRateLimitService(env.store, services.DefaultSaturationFactor, env.audit, env.clock, logger)
	env.accounts = services.NewAccountService(env.repo, env.activation, env.notifier, env.limiter, env.audit, services.AccountConfig{
		ResendCooldown:        5 * time.Minute,
		RegisterFailureLimit:  5,
		RegisterFailureWindow: 5 * time.Minute,
		BcryptCost:            bcrypt.MinCost,
	}, env.clock, logger)
	env.auth = services.NewAuthService(env.repo, env.lockout, env.limiter, env.tokens, env.revoke, env.audit, services.LoginConfig{
		FailureLimit:  5,
		FailureWindow: 5 * time.Minute,
	}, env.clock, logger)

	return env
}

// seedActive stores an activated account with testPassword.
func (e *testEnv) seedActive(t *testing.T, email string) *models.Account {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	return e.repo.Seed(&models.Account{
		Email:         email,
		PasswordHash:  hash,
		IsActive:      true,
		EmailVerified: true,
	})
}

// wrongCode returns a six-digit code guaranteed to differ from code.
func wrongCode(code string) string {
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}
