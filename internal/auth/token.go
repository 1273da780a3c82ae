package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	tokenTypeAccess = "access"
	tokenIssuer     = "bastion"
)

// ErrInvalidToken wraps every reason a bearer token is refused
var ErrInvalidToken = errors.New("invalid token")

// TokenManager issues and verifies HS256 access tokens. Verification runs
// on the injected clock so expiry follows the same time source as lockouts.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	clock  clockwork.Clock
	parser *jwt.Parser
}

func NewTokenManager(secret string, accessExpiry time.Duration, clock clockwork.Clock) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		expiry: accessExpiry,
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// AccessTokenExpiry is the lifetime of issued access tokens.
func (tm *TokenManager) AccessTokenExpiry() time.Duration {
	return tm.expiry
}

// GenerateAccessToken signs a token for account. Each token gets a fresh
// JTI so it can be revoked on its own.
func (tm *TokenManager) GenerateAccessToken(account *models.Account) (string, *models.TokenClaims, error) {
	now := tm.clock.Now()

	claims := &models.TokenClaims{
		Type:   tokenTypeAccess,
		UserID: account.ID,
		Email:  account.Email,
		Role:   account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   account.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken verifies signature, issuer and lifetime and returns the claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := tm.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Type != tokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidToken, claims.Type)
	}
	return claims, nil
}
