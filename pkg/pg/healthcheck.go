package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// Healthcheck returns a closure that pings the pool, for health endpoints.
func Healthcheck(conn *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := conn.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// RegistryHealthcheck returns a closure that pings every live tenant pool of
// reg and reports all failures together.
func RegistryHealthcheck(reg *tenancy.Registry[*pgxpool.Pool]) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, d := range reg.Descriptors() {
			pool, ok := reg.Get(d)
			if !ok {
				continue
			}
			if err := pool.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d, err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(ErrHealthcheckFailed, errors.Join(errs...))
		}
		return nil
	}
}
