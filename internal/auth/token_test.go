package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

func testAccount() *models.Account {
	return &models.Account{ID: "acc-1", Email: "user@example.com", Role: models.RoleStaff}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)

	token, issued, err := tm.GenerateAccessToken(testAccount())
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.UserID)
	assert.Equal(t, models.RoleStaff, claims.Role)
	assert.True(t, claims.IsPrivileged())
	assert.Equal(t, issued.ID, claims.ID)
}

func TestTokenManager_Expired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)

	token, _, err := tm.GenerateAccessToken(testAccount())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	issuer := NewTokenManager(testSecret, 15*time.Minute, clock)
	verifier := NewTokenManager("another-secret-32-characters-long", 15*time.Minute, clock)

	token, _, err := issuer.GenerateAccessToken(testAccount())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsForeignIssuer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)

	claims := &models.TokenClaims{
		Type:   tokenTypeAccess,
		UserID: "acc-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)

	claims := &models.TokenClaims{
		Type:   tokenTypeAccess,
		UserID: "acc-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsMissingExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	tm := NewTokenManager(testSecret, 15*time.Minute, clock)

	claims := &models.TokenClaims{
		Type:             tokenTypeAccess,
		UserID:           "acc-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}
