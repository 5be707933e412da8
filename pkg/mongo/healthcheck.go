package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// Healthcheck returns a closure that pings the client, for readiness and
// liveness probes.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// RegistryHealthcheck returns a closure that pings every client serving a
// live tenant pool of reg. Pools sharing a client are pinged once.
func RegistryHealthcheck(reg *tenancy.Registry[*Pool]) func(context.Context) error {
	return func(ctx context.Context) error {
		seen := make(map[*mongo.Client]struct{})
		var errs []error
		for _, d := range reg.Descriptors() {
			pool, ok := reg.Get(d)
			if !ok {
				continue
			}
			if _, done := seen[pool.client]; done {
				continue
			}
			seen[pool.client] = struct{}{}
			if err := pool.client.Ping(ctx, nil); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d, err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(ErrHealthcheckFailed, errors.Join(errs...))
		}
		return nil
	}
}
