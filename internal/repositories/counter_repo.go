package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

// CounterRepository is a counter.Store backed by the rate_counters table, so
// every API worker shares the same windows.
type CounterRepository struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

func NewCounterRepository(db *database.DB, clock clockwork.Clock) *CounterRepository {
	return &CounterRepository{pool: db.Pool, clock: clock}
}

func (r *CounterRepository) Get(ctx context.Context, key string) (int64, time.Time, error) {
	query := `SELECT value, expires_at FROM rate_counters WHERE key = $1 AND expires_at > $2`

	var value int64
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, key, r.clock.Now()).Scan(&value, &expiresAt)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("failed to read counter: %w", mapped)
	}
	return value, expiresAt, nil
}

// IncrementWithTTL performs the read-modify-write as one upsert. An expired
// row is treated as absent and restarts at 1 with a fresh expiry.
func (r *CounterRepository) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, time.Time, error) {
	query := `
		INSERT INTO rate_counters (key, value, expires_at)
		VALUES ($1, 1, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE
				WHEN rate_counters.expires_at <= $2 THEN 1
				WHEN $4 > 0 THEN LEAST(rate_counters.value + 1, $4)
				ELSE rate_counters.value + 1
			END,
			expires_at = CASE
				WHEN rate_counters.expires_at <= $2 THEN EXCLUDED.expires_at
				ELSE rate_counters.expires_at
			END
		RETURNING value, expires_at
	`

	now := r.clock.Now()
	var value int64
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx, query, key, now, now.Add(ttl), limit).Scan(&value, &expiresAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment counter: %w", database.MapPostgresError(err))
	}
	return value, expiresAt, nil
}

func (r *CounterRepository) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	query := `
		INSERT INTO rate_counters (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.pool.Exec(ctx, query, key, value, r.clock.Now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to set counter: %w", database.MapPostgresError(err))
	}
	return nil
}

func (r *CounterRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rate_counters WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete counter: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteExpired removes counters whose window has closed (call periodically)
func (r *CounterRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM rate_counters WHERE expires_at <= $1`, r.clock.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
