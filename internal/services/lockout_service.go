package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jonboulle/clockwork"
)

// AccountSecurityRepository is the narrow view of account storage the
// lockout tracker needs.
type AccountSecurityRepository interface {
	GetSecurityState(ctx context.Context, accountID string) (*models.AccountSecurityState, error)
	IncrementFailedAttempts(ctx context.Context, accountID, ip string, threshold int, lockUntil time.Time) (*models.AccountSecurityState, error)
	ResetFailedAttempts(ctx context.Context, accountID, ip string) error
}

// LockoutConfig holds the lockout thresholds
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutService tracks failed logins and temporarily locks accounts.
// It never terminates sessions; the login flow does that.
type LockoutService struct {
	repo   AccountSecurityRepository
	config LockoutConfig
	audit  AuditSink
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewLockoutService(repo AccountSecurityRepository, config LockoutConfig, audit AuditSink, clock clockwork.Clock, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		config: config,
		audit:  audit,
		clock:  clock,
		logger: logger,
	}
}

// RecordFailure counts one failed login. It reports whether the account is
// locked afterwards. Storage errors are logged and reported as not locked.
func (s *LockoutService) RecordFailure(ctx context.Context, accountID, sourceIP string) bool {
	now := s.clock.Now()
	lockUntil := now.Add(s.config.Duration)

	state, err := s.repo.IncrementFailedAttempts(ctx, accountID, sourceIP, s.config.Threshold, lockUntil)
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return false
	}

	if state.FailedAttemptCount < s.config.Threshold || !state.IsLockedAt(now) {
		return false
	}

	s.logger.Warn("account locked",
		slog.String("account_id", accountID),
		slog.Int("failed_attempts", state.FailedAttemptCount),
		slog.Time("locked_until", *state.LockedUntil))
	s.audit.Record(ctx, models.AuditEvent{
		Timestamp: now,
		Category:  models.AuditCategoryAccountLocked,
		Identity:  accountID,
		Detail: models.AuditDetail{
			"failed_attempts": state.FailedAttemptCount,
			"locked_until":    state.LockedUntil.UTC().Format(time.RFC3339),
			"source_ip":       sourceIP,
		},
	})
	return true
}

// RecordSuccess clears the failure count and any lock. It is idempotent.
func (s *LockoutService) RecordSuccess(ctx context.Context, accountID, sourceIP string) {
	if err := s.repo.ResetFailedAttempts(ctx, accountID, sourceIP); err != nil {
		s.logger.Error("failed to reset login failures",
			slog.String("account_id", accountID),
			slog.Any("error", err))
	}
}

// IsLocked reports whether the account is locked right now. It is a pure
// read; storage errors fail open.
func (s *LockoutService) IsLocked(ctx context.Context, accountID string) bool {
	state, err := s.repo.GetSecurityState(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to read lockout state, treating as unlocked",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return false
	}
	return state.IsLockedAt(s.clock.Now())
}

// Unlock lifts a lock ahead of time on behalf of an administrator.
func (s *LockoutService) Unlock(ctx context.Context, accountID, actor string) error {
	if err := s.repo.ResetFailedAttempts(ctx, accountID, ""); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryAccountUnlocked,
		Identity: accountID,
		Detail:   models.AuditDetail{"actor": actor},
	})
	return nil
}
