// Package tenancy provides a tenant-aware connection pool manager: the current
// tenant of every execution context is tracked independently, resolved to an
// immutable connection descriptor by a pluggable isolation strategy, and
// served from a lazily built, concurrency-safe pool registry.
//
// # Architecture
//
// The package is built around five pieces:
//
// 1. TenantContext - the per-unit-of-work tenant slot, carried by context.Context
// 2. Config and Store - the frozen configuration, built once with functional options
// 3. Resolver - maps (owner, tenant, role, shard) to a Descriptor using a Strategy
// 4. Registry - caches exactly one pool per Descriptor
// 5. Switcher and Manager - permanent and scoped tenant switches, create and drop
//
// Database specifics live behind the Adapter interface. This repository ships
// adapters for PostgreSQL (pkg/pg), MySQL (pkg/mysql) and MongoDB (pkg/mongo),
// plus MemoryAdapter for tests.
//
// # Usage
//
//	import "github.com/dmitrymomot/tenantdb/pkg/tenancy"
//
//	cfg, err := tenancy.Configure(
//		tenancy.WithStrategy(tenancy.StrategySchema),
//		tenancy.WithTenantNames("acme", "globex"),
//		tenancy.WithPersistentSchemas("shared"),
//		tenancy.WithBaseConfig(tenancy.ConnConfig{tenancy.KeyURL: dsn}),
//	)
//	if err != nil {
//		return err
//	}
//
//	mgr, err := tenancy.New[*pgxpool.Pool](cfg, pg.NewAdapter(admin, pgCfg, pg.ForConfig(cfg)))
//	if err != nil {
//		return err
//	}
//	defer mgr.Close(ctx)
//
//	// Once per request, job or task.
//	ctx = mgr.NewContext(ctx)
//
//	err = mgr.Scoped(ctx, "acme", func(ctx context.Context) error {
//		pool, err := mgr.Pool(ctx)
//		if err != nil {
//			return err
//		}
//		_, err = pool.Exec(ctx, "INSERT INTO users (name) VALUES ($1)", "alice")
//		return err
//	})
//
// # Execution Contexts
//
// A TenantContext belongs to one goroutine. Call Fork before handing a
// context to another goroutine; switches inside the goroutine then stay
// invisible to the parent, and the parent's later switches stay invisible to
// the goroutine. Contexts without a TenantContext report no current tenant;
// Scoped attaches one on demand.
//
// # Scoped Switches
//
// Scoped restores the previous tenant on every exit path, including panics
// and cancellation of the caller's context. If the previous tenant cannot be
// reconnected (for example it was dropped inside the block), the context
// falls back to the default tenant and the restoration error is joined to
// the block's error.
//
// # Error Handling
//
// Tenant operations fail with one of four kinds, matched with errors.Is:
//
//	tenancy.ErrConfiguration       // invalid or duplicate configuration
//	tenancy.ErrTenantNotFound      // missing isolation unit
//	tenancy.ErrTenantAlreadyExists // create of an existing tenant
//	tenancy.ErrFileNotFound        // missing tenants file
//
// Adapter errors listed by RescuableErrors are translated into these kinds;
// other errors pass through unchanged.
//
// # Observability
//
// Use LoggerExtractor with logger.WithContextExtractors to stamp every log
// record with the current tenant. NewMetrics registers pool and switch
// counters on a Prometheus registerer; pass the result with WithMetrics.
package tenancy
