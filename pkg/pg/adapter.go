package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// Mode selects the PostgreSQL object that isolates a tenant.
type Mode uint8

const (
	// ModeSchema keeps each tenant in its own schema and routes via search_path.
	ModeSchema Mode = iota
	// ModeDatabase keeps each tenant in its own database on the server.
	ModeDatabase
)

// ModeFor returns the mode that implements strategy s.
func ModeFor(s tenancy.Strategy) Mode {
	if s == tenancy.StrategySchema {
		return ModeSchema
	}
	return ModeDatabase
}

// Adapter implements tenancy.Adapter for PostgreSQL on top of pgxpool.
// Tenant DDL runs on the admin pool; tenant pools are built from the
// resolved descriptor.
type Adapter struct {
	admin      *pgxpool.Pool
	cfg        Config
	mode       Mode
	nameFormat string
	logger     *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMode sets the isolation mode. Defaults to ModeSchema.
func WithMode(m Mode) AdapterOption {
	return func(a *Adapter) { a.mode = m }
}

// WithDatabaseNameFormat sets the fmt pattern mapping a tenant to its database
// in ModeDatabase. It must match the tenancy configuration.
func WithDatabaseNameFormat(format string) AdapterOption {
	return func(a *Adapter) {
		if format != "" {
			a.nameFormat = format
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// ForConfig derives mode and database name format from a tenancy configuration.
func ForConfig(cfg *tenancy.Config) AdapterOption {
	return func(a *Adapter) {
		a.mode = ModeFor(cfg.Strategy())
		a.nameFormat = cfg.DatabaseNameFormat()
	}
}

// NewAdapter creates an adapter. admin is used for tenant DDL and existence
// checks and is not closed by the adapter.
func NewAdapter(admin *pgxpool.Pool, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		admin:      admin,
		cfg:        cfg,
		mode:       ModeSchema,
		nameFormat: tenancy.DefaultDatabaseNameFormat,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("pg.adapter"))
	return a
}

// unit returns the schema or database name of tenant.
func (a *Adapter) unit(tenant string) string {
	if a.mode == ModeDatabase {
		return fmt.Sprintf(a.nameFormat, tenant)
	}
	return tenant
}

func (a *Adapter) ddl(tenant, verb string) (string, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", ErrEmptyIdentifier
	}
	if a.admin == nil {
		return "", ErrNoAdminPool
	}
	ident := pgx.Identifier{a.unit(tenant)}.Sanitize()
	switch {
	case a.mode == ModeDatabase:
		return verb + " DATABASE " + ident, nil
	case verb == "DROP":
		return "DROP SCHEMA " + ident + " CASCADE", nil
	default:
		return verb + " SCHEMA " + ident, nil
	}
}

// CreateTenant implements tenancy.Adapter.
func (a *Adapter) CreateTenant(ctx context.Context, tenant string) error {
	stmt, err := a.ddl(tenant, "CREATE")
	if err != nil {
		return err
	}
	if _, err := a.admin.Exec(ctx, stmt); err != nil {
		return classify(err)
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant unit created",
		logger.Tenant(tenant),
		logger.Database(a.unit(tenant)),
	)
	return nil
}

// DropTenant implements tenancy.Adapter.
func (a *Adapter) DropTenant(ctx context.Context, tenant string) error {
	stmt, err := a.ddl(tenant, "DROP")
	if err != nil {
		return err
	}
	if _, err := a.admin.Exec(ctx, stmt); err != nil {
		return classify(err)
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant unit dropped",
		logger.Tenant(tenant),
		logger.Database(a.unit(tenant)),
	)
	return nil
}

// BuildPool implements tenancy.Adapter. The target schema or database must
// already exist.
func (a *Adapter) BuildPool(ctx context.Context, d tenancy.Descriptor) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(a.cfg, d)
	if err != nil {
		return nil, err
	}

	if err := a.checkExists(ctx, d, poolCfg); err != nil {
		return nil, err
	}

	pool, err := open(ctx, poolCfg, a.cfg)
	if err != nil {
		return nil, classify(err)
	}
	return pool, nil
}

// checkExists looks the tenant's unit up through the admin pool so a missing
// tenant fails fast instead of going through connect retries.
func (a *Adapter) checkExists(ctx context.Context, d tenancy.Descriptor, poolCfg *pgxpool.Config) error {
	if a.admin == nil {
		return nil
	}

	var (
		query string
		name  string
	)
	if a.mode == ModeDatabase {
		query = `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
		name = poolCfg.ConnConfig.Database
	} else {
		path := d.Config().Strings(tenancy.KeySearchPath)
		if len(path) == 0 {
			return nil
		}
		query = `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`
		name = path[0]
	}

	var exists bool
	if err := a.admin.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return errors.Join(ErrFailedToOpenDBConnection, err)
	}
	if !exists {
		return tenancy.ErrTenantNotFound
	}
	return nil
}

// ClosePool implements tenancy.Adapter.
func (a *Adapter) ClosePool(_ context.Context, pool *pgxpool.Pool) error {
	if pool != nil {
		pool.Close()
	}
	return nil
}

// CurrentMarker implements tenancy.Adapter. It reports the current schema in
// ModeSchema and the current database in ModeDatabase.
func (a *Adapter) CurrentMarker(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	query := `SELECT current_schema()`
	if a.mode == ModeDatabase {
		query = `SELECT current_database()`
	}
	var marker string
	if err := pool.QueryRow(ctx, query).Scan(&marker); err != nil {
		return "", err
	}
	return marker, nil
}

// RescuableErrors implements tenancy.Adapter.
func (a *Adapter) RescuableErrors() []error {
	return []error{ErrFailedToOpenDBConnection}
}

// PoolConfig builds the pgxpool configuration for d. The descriptor's
// configuration (merged with its shard entry) overrides the base connection
// string: url replaces it entirely, then host, port, user, password and
// database override single fields. A search_path becomes a runtime parameter.
func PoolConfig(cfg Config, d tenancy.Descriptor) (*pgxpool.Config, error) {
	conn := tenancy.ShardConfig(d)

	dsn := conn.String(tenancy.KeyURL)
	if dsn == "" {
		dsn = cfg.ConnectionString
	}
	if dsn == "" {
		return nil, ErrEmptyConnectionString
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, redact(err, dsn))
	}
	applyLimits(poolCfg, cfg)

	cc := poolCfg.ConnConfig
	if host := conn.String(tenancy.KeyHost); host != "" {
		cc.Host = host
	}
	if port, ok := conn.Int(tenancy.KeyPort); ok {
		cc.Port = uint16(port)
	}
	if user := conn.String(tenancy.KeyUser); user != "" {
		cc.User = user
	}
	if password := conn.String(tenancy.KeyPassword); password != "" {
		cc.Password = password
	}
	if db := conn.String(tenancy.KeyDatabase); db != "" {
		cc.Database = db
	}

	if path := conn.Strings(tenancy.KeySearchPath); len(path) > 0 {
		idents := make([]string, len(path))
		for i, p := range path {
			idents[i] = pgx.Identifier{p}.Sanitize()
		}
		cc.RuntimeParams["search_path"] = strings.Join(idents, ", ")
	}

	return poolCfg, nil
}

// redact drops the password from parse errors that echo the DSN. The DSN may
// be malformed, so the userinfo is located by hand.
func redact(err error, dsn string) error {
	rest, ok := strings.CutPrefix(dsn, "postgres://")
	if !ok {
		rest, ok = strings.CutPrefix(dsn, "postgresql://")
	}
	if !ok {
		return err
	}
	userinfo, _, ok := strings.Cut(rest, "@")
	if !ok {
		return err
	}
	_, pw, ok := strings.Cut(userinfo, ":")
	if !ok || pw == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), pw, "xxxxx"))
}

// SearchPath returns the search_path runtime parameter the pool config sets,
// e.g. `"acme", "shared"`.
func SearchPath(poolCfg *pgxpool.Config) string {
	return poolCfg.ConnConfig.RuntimeParams["search_path"]
}
