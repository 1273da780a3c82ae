package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the repositories translate
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeQueryCanceled       = "57014"
)

// MapPostgresError translates driver errors into model sentinels. Errors
// it does not recognise are returned unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return models.ErrConflict
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
		return fmt.Errorf("%w: %s", models.ErrBadRequest, pgErr.ConstraintName)
	case codeQueryCanceled:
		return context.DeadlineExceeded
	}
	return err
}
