package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/jonboulle/clockwork"
)

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID string, revokedAt, expiresAt time.Time) error
}

// LoginConfig holds the per-IP login failure limits
type LoginConfig struct {
	FailureLimit  int
	FailureWindow time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	repo       AccountRepository
	lockout    *LockoutService
	limiter    *RateLimitService
	tm         *auth.TokenManager
	revokeRepo TokenRevocationRepository
	audit      AuditSink
	config     LoginConfig
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo AccountRepository,
	lockout *LockoutService,
	limiter *RateLimitService,
	tm *auth.TokenManager,
	revokeRepo TokenRevocationRepository,
	audit AuditSink,
	config LoginConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:       repo,
		lockout:    lockout,
		limiter:    limiter,
		tm:         tm,
		revokeRepo: revokeRepo,
		audit:      audit,
		config:     config,
		clock:      clock,
		logger:     logger,
	}
}

// AccountResponse represents an account in the HTTP response
type AccountResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// LoginResponse represents the response from a successful login
type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int              `json:"expires_in"`
	Account     *AccountResponse `json:"account"`
}

// Login authenticates an account and returns an access token.
//
// A locked account is rejected without checking the password, and its
// existing sessions are terminated.
func (s *AuthService) Login(ctx context.Context, email, password, sourceIP, userAgent string) (*LoginResponse, error) {
	if email = normalizeEmail(email); email == "" {
		return nil, models.ErrUnauthorized
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = pkgauth.DummyCompare(password)
			return nil, s.loginFailed(ctx, "", sourceIP, userAgent, "invalid_credentials")
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.lockout.IsLocked(ctx, account.ID) {
		s.logger.Info("login blocked: account locked", slog.String("account_id", account.ID))
		if err := s.TerminateSessions(ctx, account.ID, "account_locked"); err != nil {
			s.logger.Error("failed to terminate sessions of locked account",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		}
		s.audit.Record(ctx, models.AuditEvent{
			Category: models.AuditCategoryLoginFailed,
			Identity: account.ID,
			Detail:   models.AuditDetail{"reason": "account_locked", "source_ip": sourceIP},
		})
		return nil, models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		failErr := s.loginFailed(ctx, account.ID, sourceIP, userAgent, "invalid_credentials")
		if s.lockout.RecordFailure(ctx, account.ID, sourceIP) {
			if err := s.TerminateSessions(ctx, account.ID, "account_locked"); err != nil {
				s.logger.Error("failed to terminate sessions of locked account",
					slog.String("account_id", account.ID),
					slog.Any("error", err))
			}
			return nil, models.ErrAccountLocked
		}
		return nil, failErr
	}

	if !account.IsActive {
		s.logger.Info("login blocked: account not activated", slog.String("account_id", account.ID))
		return nil, models.ErrAccountInactive
	}

	s.lockout.RecordSuccess(ctx, account.ID, sourceIP)

	token, _, err := s.tm.GenerateAccessToken(account)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryLoginSucceeded,
		Identity: account.ID,
		Detail:   models.AuditDetail{"source_ip": sourceIP},
	})

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tm.AccessTokenExpiry().Seconds()),
		Account: &AccountResponse{
			ID:            account.ID,
			Email:         account.Email,
			Role:          account.Role,
			EmailVerified: account.EmailVerified,
		},
	}, nil
}

// loginFailed counts a failure against the source IP and audits it. It
// returns ErrRateLimitExceeded once the address has failed more than
// FailureLimit times in the window, ErrUnauthorized otherwise. Only failed
// credentials are counted, so valid credentials are never refused here.
func (s *AuthService) loginFailed(ctx context.Context, accountID, sourceIP, userAgent, reason string) error {
	identity := accountID
	if identity == "" {
		identity = sourceIP
	}
	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryLoginFailed,
		Identity: identity,
		Detail: models.AuditDetail{
			"reason":     reason,
			"source_ip":  sourceIP,
			"user_agent": userAgent,
		},
	})

	allowed, err := s.limiter.Admit(ctx, models.RateLimitScopeLogin, sourceIP, s.config.FailureLimit, s.config.FailureWindow)
	if err != nil {
		s.logger.Error("failed to count login failure", slog.Any("error", err))
	}
	if !allowed {
		return models.ErrRateLimitExceeded
	}
	return models.ErrUnauthorized
}

// TerminateSessions revokes every token issued to the account so far.
func (s *AuthService) TerminateSessions(ctx context.Context, accountID, reason string) error {
	now := s.clock.Now()
	if err := s.revokeRepo.RevokeAllUserTokens(ctx, accountID, now, now.Add(s.tm.AccessTokenExpiry())); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditEvent{
		Timestamp: now,
		Category:  models.AuditCategorySessionTerminated,
		Identity:  accountID,
		Detail:    models.AuditDetail{"reason": reason},
	})
	return nil
}

// IsLocked exposes the lockout state to request-time guards.
func (s *AuthService) IsLocked(ctx context.Context, accountID string) bool {
	return s.lockout.IsLocked(ctx, accountID)
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	expiresAt := s.clock.Now().Add(s.tm.AccessTokenExpiry())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, expiresAt, "logout")
}
