package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

// markerCollection materializes a tenant database, which MongoDB otherwise
// creates lazily on first write.
const markerCollection = "_tenant"

// Pool is the per-descriptor handle of the adapter: a database bound to the
// tenant and the client that serves it.
type Pool struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// Database returns the tenant database.
func (p *Pool) Database() *mongo.Database { return p.db }

// Client returns the client serving the tenant database.
func (p *Pool) Client() *mongo.Client { return p.client }

// Collection is shorthand for p.Database().Collection(name).
func (p *Pool) Collection(name string) *mongo.Collection {
	return p.db.Collection(name)
}

// Adapter implements tenancy.Adapter with one database per tenant. Tenants
// on the shared deployment reuse the shared client; tenants whose descriptor
// carries another url get a client of their own.
type Adapter struct {
	client     *mongo.Client
	cfg        Config
	nameFormat string
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

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an adapter around the shared client. The adapter never
// disconnects the shared client.
func NewAdapter(client *mongo.Client, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:     client,
		cfg:        cfg,
		nameFormat: tenancy.DefaultDatabaseNameFormat,
		logger:     slog.Default(),
	}
	if cfg.DatabaseNameFormat != "" {
		a.nameFormat = cfg.DatabaseNameFormat
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("mongo.adapter"))
	return a
}

// DatabaseName returns the database of tenant under format.
func DatabaseName(format, tenant string) string {
	if format == "" {
		format = tenancy.DefaultDatabaseNameFormat
	}
	return fmt.Sprintf(format, tenant)
}

func (a *Adapter) exists(ctx context.Context, client *mongo.Client, name string) (bool, error) {
	names, err := client.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, errors.Join(ErrFailedToConnectToMongo, err)
	}
	return len(names) > 0, nil
}

func (a *Adapter) tenantDatabase(tenant string) (string, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", ErrEmptyDatabaseName
	}
	return DatabaseName(a.nameFormat, tenant), nil
}

// CreateTenant implements tenancy.Adapter.
func (a *Adapter) CreateTenant(ctx context.Context, tenant string) error {
	name, err := a.tenantDatabase(tenant)
	if err != nil {
		return err
	}
	ok, err := a.exists(ctx, a.client, name)
	if err != nil {
		return err
	}
	if ok {
		return tenancy.ErrTenantAlreadyExists
	}

	if err := a.client.Database(name).CreateCollection(ctx, markerCollection); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
			return errors.Join(tenancy.ErrTenantAlreadyExists, err)
		}
		return err
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant database created",
		logger.Tenant(tenant),
		logger.Database(name),
	)
	return nil
}

// DropTenant implements tenancy.Adapter.
func (a *Adapter) DropTenant(ctx context.Context, tenant string) error {
	name, err := a.tenantDatabase(tenant)
	if err != nil {
		return err
	}
	ok, err := a.exists(ctx, a.client, name)
	if err != nil {
		return err
	}
	if !ok {
		return tenancy.ErrTenantNotFound
	}
	if err := a.client.Database(name).Drop(ctx); err != nil {
		return err
	}
	a.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant database dropped",
		logger.Tenant(tenant),
		logger.Database(name),
	)
	return nil
}

// BuildPool implements tenancy.Adapter.
func (a *Adapter) BuildPool(ctx context.Context, d tenancy.Descriptor) (*Pool, error) {
	conn := tenancy.ShardConfig(d)

	name := conn.String(tenancy.KeyDatabase)
	if name == "" {
		name = DatabaseName(a.nameFormat, d.Tenant())
	}

	client, owned := a.client, false
	if uri := conn.String(tenancy.KeyURL); uri != "" && uri != a.cfg.ConnectionURL {
		c, err := connect(ctx, a.cfg, uri)
		if err != nil {
			return nil, err
		}
		client, owned = c, true
	}

	ok, err := a.exists(ctx, client, name)
	if err == nil && !ok {
		err = tenancy.ErrTenantNotFound
	}
	if err != nil {
		if owned {
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}
		return nil, err
	}

	return &Pool{client: client, db: client.Database(name), owned: owned}, nil
}

// ClosePool implements tenancy.Adapter. Only clients opened for the pool are
// disconnected.
func (a *Adapter) ClosePool(ctx context.Context, pool *Pool) error {
	if pool == nil || !pool.owned {
		return nil
	}
	return pool.client.Disconnect(ctx)
}

// CurrentMarker implements tenancy.Adapter.
func (a *Adapter) CurrentMarker(_ context.Context, pool *Pool) (string, error) {
	return pool.db.Name(), nil
}

// RescuableErrors implements tenancy.Adapter.
func (a *Adapter) RescuableErrors() []error {
	return []error{ErrFailedToConnectToMongo}
}
