// Package redis keeps the tenant universe of the tenancy pool manager in a
// Redis hash and provides the connection helpers around go-redis.
//
// The package adds:
//
//   - Provider, a tenancy.TenantsProvider over a hash of tenant name → JSON
//     connection config, with Register and Unregister for onboarding.
//   - RegisterOnCreate, a create hook that registers tenants as they are
//     created.
//   - Connect, which retries the connection within a timeout.
//   - Healthcheck, for liveness and readiness probes.
//
// Configuration is described by the `Config` struct whose fields can be
// populated from environment variables via github.com/caarlos0/env.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	tenants := redis.NewProvider(client, cfg.TenantsKey)
//	tcfg, err := tenancy.Configure(
//		tenancy.WithStrategy(tenancy.StrategyConfigMap),
//		tenancy.WithTenants(tenants),
//	)
//
//	// Onboard a tenant on its own server.
//	err = tenants.Register(ctx, "acme", tenancy.ConnConfig{
//		tenancy.KeyURL: "postgres://acme@eu.db.internal/acme",
//	})
//
// # Error Handling
//
// Failures to read the hash are wrapped in ErrLoadTenants; values that are not
// JSON objects in ErrInvalidTenantConfig.
package redis
