package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidConnectionString = errors.New("pg: invalid connection string")
	ErrConnectionFailed        = errors.New("pg: connection failed after retries")
	ErrHealthcheckFailed       = errors.New("pg: healthcheck failed")
	ErrMigrationFailed         = errors.New("pg: migration failed")
	ErrMigrationsDirNotFound   = errors.New("pg: migrations directory not found")
)

// IsNotFoundError reports whether err is pgx's no-rows result. The stores
// translate it into their own not-found sentinels.
func IsNotFoundError(err error) bool {
	return err != nil && errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports a unique-constraint violation (SQLSTATE
// 23505). The event store relies on it for append-wins deduplication.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolationError reports a referential-integrity violation
// (SQLSTATE 23503), e.g. an invoice naming a missing subscription.
func IsForeignKeyViolationError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
