package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEventRepository handles audit event data access
type AuditEventRepository struct {
	pool *pgxpool.Pool
}

// NewAuditEventRepository creates a new AuditEventRepository
func NewAuditEventRepository(db *database.DB) *AuditEventRepository {
	return &AuditEventRepository{pool: db.Pool}
}

func scanAuditEventRow(row rowScanner) (*models.AuditEvent, error) {
	var ev models.AuditEvent
	if err := row.Scan(&ev.ID, &ev.Timestamp, &ev.Category, &ev.Identity, &ev.Detail); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &ev, nil
}

func scanAuditEventRows(rows pgx.Rows) ([]*models.AuditEvent, error) {
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		ev, err := scanAuditEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit event rows: %w", err)
	}
	return events, nil
}

// Create persists an audit event. Events are write-once.
func (r *AuditEventRepository) Create(ctx context.Context, ev *models.AuditEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	query := `
		INSERT INTO audit_events (id, occurred_at, category, identity, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.pool.Exec(ctx, query, ev.ID, ev.Timestamp, ev.Category, ev.Identity, ev.Detail); err != nil {
		return fmt.Errorf("failed to create audit event: %w", database.MapPostgresError(err))
	}
	return nil
}

// ListByIdentity returns the newest events recorded for identity.
func (r *AuditEventRepository) ListByIdentity(ctx context.Context, identity string, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, occurred_at, category, identity, detail
		FROM audit_events
		WHERE identity = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return scanAuditEventRows(rows)
}
