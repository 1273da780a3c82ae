package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AccountRepository persists accounts together with their lockout and
// activation-code bookkeeping. Every mutation is a single statement so
// concurrent callers never lose an update.
type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const accountColumns = `id, email, password_hash, role, is_active, email_verified, created_at, updated_at`

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	err := scanner.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Role,
		&a.IsActive, &a.EmailVerified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

func scanSecurityStateRow(scanner rowScanner) (*models.AccountSecurityState, error) {
	var s models.AccountSecurityState
	err := scanner.Scan(&s.AccountID, &s.FailedAttemptCount, &s.LockedUntil, &s.LastKnownIP)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Role == "" {
		account.Role = models.RoleUser
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, role, is_active, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.Role,
		account.IsActive, account.EmailVerified,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

// Activate marks the account active and verified and drops its activation code.
func (r *AccountRepository) Activate(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET is_active = TRUE, email_verified = TRUE,
		    activation_code = NULL, activation_code_issued_at = NULL, activation_code_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to activate account: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) GetSecurityState(ctx context.Context, id string) (*models.AccountSecurityState, error) {
	query := `SELECT id, failed_attempt_count, locked_until, last_known_ip FROM accounts WHERE id = $1`
	return scanSecurityStateRow(r.pool.QueryRow(ctx, query, id))
}

// IncrementFailedAttempts adds one failure and, when the new count reaches
// threshold, sets locked_until to lockUntil. An empty ip keeps the stored one.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id, ip string, threshold int, lockUntil time.Time) (*models.AccountSecurityState, error) {
	query := `
		UPDATE accounts
		SET failed_attempt_count = failed_attempt_count + 1,
		    locked_until = CASE WHEN failed_attempt_count + 1 >= $2 THEN $3 ELSE locked_until END,
		    last_known_ip = COALESCE(NULLIF($4, ''), last_known_ip),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, failed_attempt_count, locked_until, last_known_ip
	`
	state, err := scanSecurityStateRow(r.pool.QueryRow(ctx, query, id, threshold, lockUntil, ip))
	if err != nil {
		return nil, fmt.Errorf("failed to record failed attempt: %w", err)
	}
	return state, nil
}

// ResetFailedAttempts zeroes the failure count and clears any lock.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id, ip string) error {
	query := `
		UPDATE accounts
		SET failed_attempt_count = 0,
		    locked_until = NULL,
		    last_known_ip = COALESCE(NULLIF($2, ''), last_known_ip),
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, ip)
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SaveActivationCode replaces any prior code with a fresh one.
func (r *AccountRepository) SaveActivationCode(ctx context.Context, id, code string, issuedAt time.Time) error {
	query := `
		UPDATE accounts
		SET activation_code = $2, activation_code_issued_at = $3, activation_code_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, code, issuedAt)
	if err != nil {
		return fmt.Errorf("failed to save activation code: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetActivationCode returns the active code, or nil when none is held.
func (r *AccountRepository) GetActivationCode(ctx context.Context, id string) (*models.ActivationCode, error) {
	query := `
		SELECT activation_code, activation_code_issued_at, activation_code_attempts
		FROM accounts WHERE id = $1
	`
	var code *string
	var issuedAt *time.Time
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&code, &issuedAt, &attempts); err != nil {
		return nil, database.MapPostgresError(err)
	}
	if code == nil || issuedAt == nil {
		return nil, nil
	}
	return &models.ActivationCode{
		AccountID:    id,
		Code:         *code,
		IssuedAt:     *issuedAt,
		AttemptCount: attempts,
	}, nil
}

// CompareAndIncrementCodeAttempts bumps the attempt count only if the code
// issued at issuedAt still has exactly expected attempts. It returns
// ErrConflict when another caller got there first or the code was replaced.
func (r *AccountRepository) CompareAndIncrementCodeAttempts(ctx context.Context, id string, issuedAt time.Time, expected int) (int, error) {
	query := `
		UPDATE accounts
		SET activation_code_attempts = activation_code_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND activation_code IS NOT NULL
		  AND activation_code_issued_at = $2 AND activation_code_attempts = $3
		RETURNING activation_code_attempts
	`
	var attempts int
	err := r.pool.QueryRow(ctx, query, id, issuedAt, expected).Scan(&attempts)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return 0, models.ErrConflict
		}
		return 0, fmt.Errorf("failed to increment code attempts: %w", mapped)
	}
	return attempts, nil
}

// ClearActivationCode drops the active code. Clearing an account with no code
// is not an error.
func (r *AccountRepository) ClearActivationCode(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET activation_code = NULL, activation_code_issued_at = NULL, activation_code_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear activation code: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
