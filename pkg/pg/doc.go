// Package pg is the PostgreSQL adapter of the tenancy pool manager, built on
// pgx/v5. It also keeps the small bootstrap helpers every service needs:
// a retrying Connect, a Healthcheck closure and goose migrations.
//
// # Architecture
//
//   • Config – populated from environment variables via caarlos0/env. Holds
//     the admin connection string and the limits applied to every pool.
//
//   • Adapter – implements tenancy.Adapter[*pgxpool.Pool]. In ModeSchema a
//     tenant is a schema and tenant pools pin search_path; in ModeDatabase a
//     tenant is a database named by the configured format. DDL runs on the
//     admin pool with identifiers quoted by pgx.Identifier.
//
//   • PoolConfig – turns a resolved tenancy.Descriptor into a
//     *pgxpool.Config without connecting, so routing can be inspected.
//
//   • Migrate / MigrateHook – run goose migrations on a pool. MigrateHook
//     plugs into tenancy.WithCreateHook so new tenants are migrated inside
//     their own schema or database.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	admin, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer admin.Close()
//
//	mgr, err := tenancy.New[*pgxpool.Pool](tcfg, pg.NewAdapter(admin, cfg, pg.ForConfig(tcfg)),
//		tenancy.WithCreateHook(pg.MigrateHook(cfg, slog.Default())),
//	)
//
// # Error Handling
//
// Driver errors are classified with jackc/pgerrcode: duplicate schema or
// database become tenancy.ErrTenantAlreadyExists, invalid schema or catalog
// names become tenancy.ErrTenantNotFound. ErrFailedToOpenDBConnection is
// rescuable, so exhausted connect retries surface as TenantNotFound.
package pg
