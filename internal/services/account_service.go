package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/jonboulle/clockwork"
)

// AccountRepository defines the account lookups and writes the flows need
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Activate(ctx context.Context, id string) error
}

// AccountConfig holds registration and activation flow settings
type AccountConfig struct {
	ResendCooldown        time.Duration
	RegisterFailureLimit  int
	RegisterFailureWindow time.Duration
	BcryptCost            int
}

// AccountService drives registration, activation and code resend.
type AccountService struct {
	repo       AccountRepository
	activation *ActivationService
	notifier   CodeNotifier
	limiter    *RateLimitService
	audit      AuditSink
	config     AccountConfig
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewAccountService(
	repo AccountRepository,
	activation *ActivationService,
	notifier CodeNotifier,
	limiter *RateLimitService,
	audit AuditSink,
	config AccountConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *AccountService {
	if config.BcryptCost == 0 {
		config.BcryptCost = pkgauth.BcryptCost
	}
	return &AccountService{
		repo:       repo,
		activation: activation,
		notifier:   notifier,
		limiter:    limiter,
		audit:      audit,
		config:     config,
		clock:      clock,
		logger:     logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an inactive account and sends it an activation code.
// Failed registrations from one IP are limited per window.
func (s *AccountService) Register(ctx context.Context, email, password, sourceIP string) (*models.Account, error) {
	exceeded, err := s.limiter.Exceeded(ctx, models.RateLimitScopeRegister, sourceIP, s.config.RegisterFailureLimit)
	if exceeded {
		if err != nil {
			s.logger.Error("register limiter unavailable", slog.Any("error", err))
		}
		s.audit.Record(ctx, models.AuditEvent{
			Category: models.AuditCategoryRateLimitRejected,
			Identity: sourceIP,
			Detail:   models.AuditDetail{"scope": models.RateLimitScopeRegister},
		})
		return nil, models.ErrRateLimitExceeded
	}

	email = normalizeEmail(email)

	if err := pkgauth.ValidatePasswordFor(password, email); err != nil {
		s.countRegisterFailure(ctx, sourceIP)
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	hash, err := pkgauth.HashPasswordWithCost(password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.Create(ctx, &models.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.countRegisterFailure(ctx, sourceIP)
			return nil, models.ErrConflict
		}
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	if err := s.issueAndDeliver(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)))
	return account, nil
}

func (s *AccountService) countRegisterFailure(ctx context.Context, sourceIP string) {
	if err := s.limiter.Hit(ctx, models.RateLimitScopeRegister, sourceIP, s.config.RegisterFailureLimit, s.config.RegisterFailureWindow); err != nil {
		s.logger.Error("failed to count registration failure", slog.Any("error", err))
	}
}

// issueAndDeliver issues a code and sends it. If delivery fails the code is
// invalidated again.
func (s *AccountService) issueAndDeliver(ctx context.Context, account *models.Account) error {
	code, err := s.activation.Issue(ctx, account.ID)
	if err != nil {
		return err
	}

	if err := s.notifier.DeliverCode(ctx, account.Email, code.Code, s.activation.ExpiresAt(code)); err != nil {
		if rbErr := s.activation.Invalidate(ctx, account.ID); rbErr != nil {
			s.logger.Error("failed to roll back undelivered activation code",
				slog.String("account_id", account.ID),
				slog.Any("error", rbErr))
		}
		return fmt.Errorf("failed to deliver activation code: %w", err)
	}

	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryCodeIssued,
		Identity: account.ID,
	})
	return nil
}

// lookupPending returns the inactive account for email. Unknown and already
// active accounts are indistinguishable to the caller.
func (s *AccountService) lookupPending(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnknownAccount
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account.IsActive {
		return nil, models.ErrUnknownAccount
	}
	return account, nil
}

// Activate verifies code for email and activates the account on success.
func (s *AccountService) Activate(ctx context.Context, email, code string) error {
	account, err := s.lookupPending(ctx, email)
	if err != nil {
		return err
	}

	if err := s.activation.Verify(ctx, account.ID, code); err != nil {
		s.audit.Record(ctx, models.AuditEvent{
			Category: models.AuditCategoryActivationFailed,
			Identity: account.ID,
			Detail:   models.AuditDetail{"reason": err.Error()},
		})
		return err
	}

	if err := s.repo.Activate(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}

	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryAccountActivated,
		Identity: account.ID,
	})
	return nil
}

// ResendCode issues a fresh code unless the current one is younger than the
// resend cooldown.
func (s *AccountService) ResendCode(ctx context.Context, email string) error {
	account, err := s.lookupPending(ctx, email)
	if err != nil {
		return err
	}

	current, err := s.activation.Current(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to load activation code: %w", err)
	}
	if current != nil {
		next := current.IssuedAt.Add(s.config.ResendCooldown)
		if now := s.clock.Now(); now.Before(next) {
			return &models.ResendCooldownError{RetryAfter: next.Sub(now)}
		}
	}

	return s.issueAndDeliver(ctx, account)
}

// ResetActivationCode drops an account's code on behalf of an administrator.
func (s *AccountService) ResetActivationCode(ctx context.Context, accountID, actor string) error {
	if _, err := s.repo.GetByID(ctx, accountID); err != nil {
		return err
	}
	if err := s.activation.Invalidate(ctx, accountID); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditEvent{
		Category: models.AuditCategoryCodeInvalidated,
		Identity: accountID,
		Detail:   models.AuditDetail{"actor": actor},
	})
	return nil
}
