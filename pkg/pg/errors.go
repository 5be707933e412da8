package pg

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

var (
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")
	ErrEmptyConnectionString    = errors.New("empty postgres connection string, use PG_CONN_URL env var")
	ErrHealthcheckFailed        = errors.New("healthcheck failed, connection is not available")
	ErrFailedToParseDBConfig    = errors.New("failed to parse db config")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")
	ErrMigrationsDirNotFound    = errors.New("migrations directory not found")
	ErrMigrationPathNotProvided = errors.New("migration path not provided")
	ErrEmptyIdentifier          = errors.New("tenant identifier is empty")
	ErrNoAdminPool              = errors.New("admin pool is required")
)

// IsNotFoundError detects pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError detects unique constraint violations (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	return hasCode(err, pgerrcode.UniqueViolation)
}

// IsForeignKeyViolationError detects referential integrity violations (SQLSTATE 23503).
func IsForeignKeyViolationError(err error) bool {
	return hasCode(err, pgerrcode.ForeignKeyViolation)
}

// IsUnitExistsError reports whether err says a schema or database already
// exists. Concurrent CREATE SCHEMA may also surface as a unique violation on
// the catalog.
func IsUnitExistsError(err error) bool {
	return hasCode(err,
		pgerrcode.DuplicateSchema,
		pgerrcode.DuplicateDatabase,
		pgerrcode.DuplicateObject,
		pgerrcode.UniqueViolation,
	)
}

// IsUnitMissingError reports whether err says a schema or database does not exist.
func IsUnitMissingError(err error) bool {
	return hasCode(err, pgerrcode.InvalidSchemaName, pgerrcode.InvalidCatalogName)
}

func hasCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, code := range codes {
		if pgErr.Code == code {
			return true
		}
	}
	return false
}

// classify maps a driver error onto the tenancy taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsUnitExistsError(err):
		return errors.Join(tenancy.ErrTenantAlreadyExists, err)
	case IsUnitMissingError(err):
		return errors.Join(tenancy.ErrTenantNotFound, err)
	}
	return err
}
