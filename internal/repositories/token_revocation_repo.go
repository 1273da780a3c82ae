package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokenRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool}
}

// RevokeToken adds a single token to the revocation blacklist
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time, reason string) error {
	query := `
		INSERT INTO revoked_tokens (jti, user_id, reason, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, jti, userID, reason, expiresAt)
	return database.MapPostgresError(err)
}

// IsTokenRevoked checks if a token is in the revocation blacklist
func (r *TokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&exists); err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// RevokeAllUserTokens invalidates every token issued to the user before
// revokedAt. The marker lives until expiresAt, after which no such token can
// still be valid.
//
// Token iat claims carry whole seconds, so revokedAt is stored truncated to
// the second: a token issued later in the same second stays valid.
func (r *TokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID string, revokedAt, expiresAt time.Time) error {
	query := `
		INSERT INTO session_revocations (user_id, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			revoked_at = GREATEST(session_revocations.revoked_at, EXCLUDED.revoked_at),
			expires_at = GREATEST(session_revocations.expires_at, EXCLUDED.expires_at)
	`
	_, err := r.pool.Exec(ctx, query, userID, revokedAt.Truncate(time.Second), expiresAt)
	return database.MapPostgresError(err)
}

// IsSessionRevoked reports whether a token issued at issuedAt predates the
// user's last forced logout.
func (r *TokenRevocationRepository) IsSessionRevoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM session_revocations WHERE user_id = $1 AND revoked_at > $2)`

	var revoked bool
	if err := r.pool.QueryRow(ctx, query, userID, issuedAt.Truncate(time.Second)).Scan(&revoked); err != nil {
		return false, database.MapPostgresError(err)
	}
	return revoked, nil
}

// CleanupExpiredTokens removes expired revocations (call periodically)
func (r *TokenRevocationRepository) CleanupExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	sessions, err := r.pool.Exec(ctx, `DELETE FROM session_revocations WHERE expires_at < $1`, now)
	if err != nil {
		return result.RowsAffected(), database.MapPostgresError(err)
	}
	return result.RowsAffected() + sessions.RowsAffected(), nil
}
