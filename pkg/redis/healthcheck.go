package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Healthcheck returns a readiness check for the client a Provider reads
// tenants from. Use Provider.Healthcheck to also verify the tenants key.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Healthcheck reports whether the tenants hash is reachable and readable.
// A key holding another type fails with WRONGTYPE, which would otherwise
// surface only on the next tenant switch.
func (p *Provider) Healthcheck(ctx context.Context) error {
	if err := p.client.HLen(ctx, p.key).Err(); err != nil {
		return errors.Join(ErrHealthcheckFailed, err)
	}
	return nil
}
