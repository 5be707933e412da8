package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// Adapter implements tenancy.Adapter[*sql.DB] with one database per tenant.
// Tenant DDL runs on the admin handle.
type Adapter struct {
	admin      *sql.DB
	cfg        Config
	nameFormat string
	open       OpenFunc
	logger     *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithDatabaseNameFormat sets the fmt pattern mapping a tenant to its database.
func WithDatabaseNameFormat(format string) AdapterOption {
	return func(a *Adapter) {
		if format != "" {
			a.nameFormat = format
		}
	}
}

// WithOpenFunc replaces how tenant handles are opened.
func WithOpenFunc(fn OpenFunc) AdapterOption {
	return func(a *Adapter) {
		if fn != nil {
			a.open = fn
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

// NewAdapter creates an adapter. admin is not closed by the adapter.
func NewAdapter(admin *sql.DB, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		admin:      admin,
		cfg:        cfg,
		nameFormat: tenancy.DefaultDatabaseNameFormat,
		open:       Open,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("mysql.adapter"))
	return a
}

// quoteIdent quotes name as a MySQL identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *Adapter) database(tenant string) (string, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", ErrEmptyIdentifier
	}
	return fmt.Sprintf(a.nameFormat, tenant), nil
}

// CreateTenant implements tenancy.Adapter.
func (a *Adapter) CreateTenant(ctx context.Context, tenant string) error {
	name, err := a.database(tenant)
	if err != nil {
		return err
	}
	if _, err := a.admin.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(name)); err != nil {
		return classify(err)
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant database created",
		logger.Tenant(tenant),
		logger.Database(name),
	)
	return nil
}

// DropTenant implements tenancy.Adapter.
func (a *Adapter) DropTenant(ctx context.Context, tenant string) error {
	name, err := a.database(tenant)
	if err != nil {
		return err
	}
	if _, err := a.admin.ExecContext(ctx, "DROP DATABASE "+quoteIdent(name)); err != nil {
		return classify(err)
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant database dropped",
		logger.Tenant(tenant),
		logger.Database(name),
	)
	return nil
}

// BuildPool implements tenancy.Adapter.
func (a *Adapter) BuildPool(ctx context.Context, d tenancy.Descriptor) (*sql.DB, error) {
	dsn, err := DSN(a.cfg, d)
	if err != nil {
		return nil, err
	}
	if dsn.DBName == "" {
		if dsn.DBName, err = a.database(d.Tenant()); err != nil {
			return nil, err
		}
	}

	var name string
	err = a.admin.QueryRowContext(ctx,
		`SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?`, dsn.DBName,
	).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, tenancy.ErrTenantNotFound
	case err != nil:
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	db, err := open(ctx, a.open, dsn, a.cfg)
	if err != nil {
		return nil, classify(err)
	}
	return db, nil
}

// ClosePool implements tenancy.Adapter.
func (a *Adapter) ClosePool(_ context.Context, db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// CurrentMarker implements tenancy.Adapter.
func (a *Adapter) CurrentMarker(ctx context.Context, db *sql.DB) (string, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT DATABASE()`).Scan(&name); err != nil {
		return "", err
	}
	return name.String, nil
}

// RescuableErrors implements tenancy.Adapter.
func (a *Adapter) RescuableErrors() []error {
	return []error{ErrFailedToOpenDBConnection}
}

// DSN builds the driver config for d: the descriptor's url (a DSN) or the
// base connection string, with host, port, user, password and database
// overridden by the descriptor's config. DBName stays empty when neither
// names a database.
func DSN(cfg Config, d tenancy.Descriptor) (*mysql.Config, error) {
	conn := tenancy.ShardConfig(d)

	raw := conn.String(tenancy.KeyURL)
	if raw == "" {
		raw = cfg.ConnectionString
	}
	if raw == "" {
		return nil, ErrEmptyConnectionString
	}

	dsn, err := mysql.ParseDSN(raw)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDSN, err)
	}
	if conn.String(tenancy.KeyURL) == "" {
		// The admin DSN's database is not a tenant database.
		dsn.DBName = ""
	}

	h := conn.String(tenancy.KeyHost)
	p, hasPort := conn.Int(tenancy.KeyPort)
	if h != "" || hasPort {
		host, port, _ := net.SplitHostPort(dsn.Addr)
		if h != "" {
			host = h
		}
		if hasPort {
			port = strconv.Itoa(p)
		}
		if port == "" {
			port = "3306"
		}
		dsn.Net = "tcp"
		dsn.Addr = net.JoinHostPort(host, port)
	}

	if user := conn.String(tenancy.KeyUser); user != "" {
		dsn.User = user
	}
	if password := conn.String(tenancy.KeyPassword); password != "" {
		dsn.Passwd = password
	}
	if db := conn.String(tenancy.KeyDatabase); db != "" {
		dsn.DBName = db
	}
	return dsn, nil
}
