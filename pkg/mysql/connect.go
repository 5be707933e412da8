package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// OpenFunc opens a database handle for a parsed DSN without connecting.
type OpenFunc func(cfg *mysql.Config) (*sql.DB, error)

// Open is the default OpenFunc, backed by mysql.NewConnector.
func Open(cfg *mysql.Config) (*sql.DB, error) {
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// Connect opens the admin handle described by cfg and pings it, retrying
// with a linear back-off.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.ConnectionString == "" {
		return nil, ErrEmptyConnectionString
	}
	dsn, err := mysql.ParseDSN(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDSN, err)
	}
	return open(ctx, Open, dsn, cfg)
}

func open(ctx context.Context, openFn OpenFunc, dsn *mysql.Config, cfg Config) (*sql.DB, error) {
	attempts := max(cfg.RetryAttempts, 1)

	var lastErr error
	for i := range attempts {
		db, err := openFn(dsn)
		if err == nil {
			applyLimits(db, cfg)
			if err = db.PingContext(ctx); err == nil {
				return db, nil
			}
			_ = db.Close()
		}
		lastErr = err

		// Server answered: retrying will not help.
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) || i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

func applyLimits(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// Healthcheck returns a closure that pings db, for health endpoints.
func Healthcheck(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// RegistryHealthcheck returns a closure that pings every live tenant handle
// of reg and reports all failures together.
func RegistryHealthcheck(reg *tenancy.Registry[*sql.DB]) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, d := range reg.Descriptors() {
			db, ok := reg.Get(d)
			if !ok {
				continue
			}
			if err := db.PingContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d, err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(ErrHealthcheckFailed, errors.Join(errs...))
		}
		return nil
	}
}
