package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jonboulle/clockwork"
)

// ActivationCodeLength is the number of digits in an activation code.
const ActivationCodeLength = 6

// casRetries bounds how often Verify re-reads after losing a compare-and-set race.
const casRetries = 3

// ActivationCodeRepository is the narrow view of account storage the
// activation code manager needs.
type ActivationCodeRepository interface {
	SaveActivationCode(ctx context.Context, accountID, code string, issuedAt time.Time) error
	GetActivationCode(ctx context.Context, accountID string) (*models.ActivationCode, error)
	CompareAndIncrementCodeAttempts(ctx context.Context, accountID string, issuedAt time.Time, expected int) (int, error)
	ClearActivationCode(ctx context.Context, accountID string) error
}

// ActivationConfig holds activation code limits
type ActivationConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

// ActivationService issues and verifies numeric activation codes. It does not
// enforce the resend cooldown; the account flow decides when to call Issue.
type ActivationService struct {
	repo   ActivationCodeRepository
	config ActivationConfig
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewActivationService(repo ActivationCodeRepository, config ActivationConfig, clock clockwork.Clock, logger *slog.Logger) *ActivationService {
	return &ActivationService{
		repo:   repo,
		config: config,
		clock:  clock,
		logger: logger,
	}
}

// GenerateCode returns ActivationCodeLength independent uniform digits.
func GenerateCode() (string, error) {
	buf := make([]byte, ActivationCodeLength)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate activation code: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// Issue replaces any previous code with a fresh one.
func (s *ActivationService) Issue(ctx context.Context, accountID string) (*models.ActivationCode, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; truncating keeps the in-memory value comparable.
	issuedAt := s.clock.Now().Truncate(time.Microsecond)

	if err := s.repo.SaveActivationCode(ctx, accountID, code, issuedAt); err != nil {
		return nil, fmt.Errorf("failed to issue activation code: %w", err)
	}

	s.logger.Info("activation code issued", slog.String("account_id", accountID))

	return &models.ActivationCode{
		AccountID: accountID,
		Code:      code,
		IssuedAt:  issuedAt,
	}, nil
}

// Current returns the active code, or nil when none is held.
func (s *ActivationService) Current(ctx context.Context, accountID string) (*models.ActivationCode, error) {
	return s.repo.GetActivationCode(ctx, accountID)
}

// ExpiresAt is the last instant code is accepted.
func (s *ActivationService) ExpiresAt(code *models.ActivationCode) time.Time {
	return code.ExpiresAt(s.config.CodeTTL)
}

// Verify checks a submitted code. The checks run in order: absent, expired,
// attempt ceiling, comparison. A mismatch consumes one attempt; the mismatch
// that reaches the ceiling reports ErrCodeAttemptsExceeded. A match clears
// the code. ErrCodeContended means concurrent submissions kept changing the
// code; the caller may retry and no attempt was consumed by this call.
func (s *ActivationService) Verify(ctx context.Context, accountID, submitted string) error {
	for i := 0; i < casRetries; i++ {
		err := s.verifyOnce(ctx, accountID, submitted)
		if !errors.Is(err, models.ErrConflict) {
			return err
		}
	}

	s.logger.Warn("activation code verification lost repeated races",
		slog.String("account_id", accountID))
	return models.ErrCodeContended
}

func (s *ActivationService) verifyOnce(ctx context.Context, accountID, submitted string) error {
	code, err := s.repo.GetActivationCode(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load activation code: %w", err)
	}
	if code == nil {
		return models.ErrNoActiveCode
	}

	if code.IsExpiredAt(s.clock.Now(), s.config.CodeTTL) {
		return models.ErrCodeExpired
	}

	if code.AttemptCount >= s.config.MaxAttempts {
		return models.ErrCodeAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) == 1 {
		if err := s.Invalidate(ctx, accountID); err != nil {
			return err
		}
		return nil
	}

	attempts, err := s.repo.CompareAndIncrementCodeAttempts(ctx, accountID, code.IssuedAt, code.AttemptCount)
	if err != nil {
		return err
	}

	if attempts >= s.config.MaxAttempts {
		s.logger.Warn("activation code attempts exhausted", slog.String("account_id", accountID))
		return models.ErrCodeAttemptsExceeded
	}
	return &models.CodeIncorrectError{AttemptsRemaining: s.config.MaxAttempts - attempts}
}

// Invalidate clears all code state. Calling it again is a no-op.
func (s *ActivationService) Invalidate(ctx context.Context, accountID string) error {
	if err := s.repo.ClearActivationCode(ctx, accountID); err != nil {
		return fmt.Errorf("failed to invalidate activation code: %w", err)
	}
	return nil
}
