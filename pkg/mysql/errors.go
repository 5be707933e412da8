package mysql

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

var (
	ErrFailedToOpenDBConnection = errors.New("failed to open mysql connection")
	ErrEmptyConnectionString    = errors.New("empty mysql connection string, use MYSQL_DSN env var")
	ErrFailedToParseDSN         = errors.New("failed to parse mysql dsn")
	ErrHealthcheckFailed        = errors.New("mysql healthcheck failed")
	ErrEmptyIdentifier          = errors.New("tenant identifier is empty")
)

// Server error numbers, see
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	erDBCreateExists = 1007
	erDBDropExists   = 1008
	erBadDB          = 1049
	erDupEntry       = 1062
)

func hasNumber(err error, numbers ...uint16) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	for _, n := range numbers {
		if myErr.Number == n {
			return true
		}
	}
	return false
}

// IsDuplicateKeyError detects unique key violations (ER_DUP_ENTRY).
func IsDuplicateKeyError(err error) bool {
	return hasNumber(err, erDupEntry)
}

// IsDatabaseExistsError detects CREATE DATABASE on an existing database.
func IsDatabaseExistsError(err error) bool {
	return hasNumber(err, erDBCreateExists)
}

// IsUnknownDatabaseError detects DROP or USE of a missing database.
func IsUnknownDatabaseError(err error) bool {
	return hasNumber(err, erDBDropExists, erBadDB)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsDatabaseExistsError(err):
		return errors.Join(tenancy.ErrTenantAlreadyExists, err)
	case IsUnknownDatabaseError(err):
		return errors.Join(tenancy.ErrTenantNotFound, err)
	}
	return err
}
