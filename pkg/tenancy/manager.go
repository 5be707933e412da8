package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
)

// CreateHook runs after a tenant's isolation unit is created, scoped to the
// new tenant, with the tenant's pool. Use it to load structure or seed data.
type CreateHook[P any] func(ctx context.Context, tenant string, pool P) error

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	logger  *slog.Logger
	metrics *Metrics
	hooks   []any
}

// WithLogger sets the logger for the Manager and its components.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the Prometheus collectors the Manager records into.
func WithMetrics(m *Metrics) ManagerOption {
	return func(o *managerOptions) {
		o.metrics = m
	}
}

// WithCreateHook appends a hook run after every successful Create. The
// hook's pool type must match the adapter's.
func WithCreateHook[P any](hook CreateHook[P]) ManagerOption {
	return func(o *managerOptions) {
		if hook != nil {
			o.hooks = append(o.hooks, hook)
		}
	}
}

// PoolOption narrows the connection Manager.Pool resolves.
type PoolOption func(*Request)

// ForOwner selects the connection owner.
func ForOwner(owner string) PoolOption {
	return func(r *Request) { r.Owner = owner }
}

// ForRole selects the connection role, e.g. RoleReading.
func ForRole(role string) PoolOption {
	return func(r *Request) { r.Role = role }
}

// ForShard selects the shard the caller asks for. The tenant's mapped shard
// wins under the shard strategy.
func ForShard(shard string) PoolOption {
	return func(r *Request) { r.Shard = shard }
}

// Manager is the tenant-aware connection pool manager: it tracks the current
// tenant per execution context, resolves descriptors, caches pools and runs
// scoped switches.
type Manager[P any] struct {
	cfg      *Config
	adapter  Adapter[P]
	registry *Registry[P]
	switcher *Switcher[P]
	hooks    []CreateHook[P]
	logger   *slog.Logger
	metrics  *Metrics
}

// New creates a Manager for cfg backed by adapter.
func New[P any](cfg *Config, adapter Adapter[P], opts ...ManagerOption) (*Manager[P], error) {
	if cfg == nil {
		return nil, errors.Join(ErrConfiguration, ErrNotConfigured)
	}
	if adapter == nil {
		return nil, errors.Join(ErrConfiguration, ErrNilAdapter)
	}

	o := &managerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	hooks := make([]CreateHook[P], 0, len(o.hooks))
	for _, h := range o.hooks {
		hook, ok := h.(CreateHook[P])
		if !ok {
			return nil, errors.Join(ErrConfiguration, ErrMismatchedHookType, fmt.Errorf("got %T", h))
		}
		hooks = append(hooks, hook)
	}

	registry := NewRegistry(adapter, o.logger, o.metrics)
	return &Manager[P]{
		cfg:      cfg,
		adapter:  adapter,
		registry: registry,
		switcher: NewSwitcher(cfg, registry, o.logger, o.metrics),
		hooks:    hooks,
		logger:   o.logger.With(logger.Component("tenancy")),
		metrics:  o.metrics,
	}, nil
}

// Config returns the configuration the manager was built with.
func (m *Manager[P]) Config() *Config {
	return m.cfg
}

// Registry exposes the pool registry, e.g. to hand it to a data-access
// layer as its sole source of pools.
func (m *Manager[P]) Registry() *Registry[P] {
	return m.registry
}

// NewContext attaches a fresh execution context reporting the default tenant.
func (m *Manager[P]) NewContext(ctx context.Context) context.Context {
	return NewContext(ctx, m.cfg.defaultTenant)
}

// Fork returns ctx with a copy of its execution context for a new goroutine.
func (m *Manager[P]) Fork(ctx context.Context) context.Context {
	return Fork(ctx)
}

// Current returns the current tenant of ctx, or the default tenant if ctx
// carries no execution context.
func (m *Manager[P]) Current(ctx context.Context) string {
	if tenant, ok := CurrentTenant(ctx); ok {
		return tenant
	}
	return m.cfg.defaultTenant
}

// Switch makes tenant current for ctx's execution context.
func (m *Manager[P]) Switch(ctx context.Context, tenant string) error {
	return m.switcher.Switch(ctx, tenant)
}

// Scoped runs work as tenant and restores the previous tenant afterwards.
func (m *Manager[P]) Scoped(ctx context.Context, tenant string, work func(ctx context.Context) error) error {
	return m.switcher.Scoped(ctx, tenant, work)
}

// Reset returns ctx's execution context to the default tenant.
func (m *Manager[P]) Reset(ctx context.Context) error {
	return m.switcher.Reset(ctx)
}

// Descriptor resolves the connection of the current tenant.
func (m *Manager[P]) Descriptor(ctx context.Context, opts ...PoolOption) (Descriptor, error) {
	req := Request{Tenant: m.Current(ctx)}
	for _, opt := range opts {
		opt(&req)
	}
	return m.switcher.Resolve(ctx, req)
}

// Pool returns the pool of the current tenant, building it on first use.
func (m *Manager[P]) Pool(ctx context.Context, opts ...PoolOption) (P, error) {
	d, err := m.Descriptor(ctx, opts...)
	if err != nil {
		var zero P
		return zero, err
	}
	return m.registry.GetOrCreate(ctx, d)
}

// Marker asks the adapter which tenant the current pool is bound to.
func (m *Manager[P]) Marker(ctx context.Context, opts ...PoolOption) (string, error) {
	pool, err := m.Pool(ctx, opts...)
	if err != nil {
		return "", err
	}
	return m.adapter.CurrentMarker(ctx, pool)
}

// Create creates tenant's isolation unit and runs the create hooks inside a
// scoped switch to the new tenant.
func (m *Manager[P]) Create(ctx context.Context, tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return errors.Join(ErrConfiguration, ErrEmptyTenant)
	}

	if err := m.adapter.CreateTenant(ctx, tenant); err != nil {
		return translate("create tenant", tenant, ErrTenantAlreadyExists, err, m.adapter.RescuableErrors())
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "Tenant created", logger.Tenant(tenant))

	if len(m.hooks) == 0 {
		return nil
	}

	return m.Scoped(ctx, tenant, func(ctx context.Context) error {
		pool, err := m.Pool(ctx)
		if err != nil {
			return err
		}
		for _, hook := range m.hooks {
			if err := hook(ctx, tenant, pool); err != nil {
				m.logger.LogAttrs(ctx, slog.LevelError, "Tenant create hook failed",
					logger.Tenant(tenant),
					logger.Error(err),
				)
				return errors.Join(ErrCreateHookFailed, err)
			}
		}
		return nil
	})
}

// Drop closes every pool bound to tenant and removes its isolation unit.
func (m *Manager[P]) Drop(ctx context.Context, tenant string) error {
	if strings.TrimSpace(tenant) == "" {
		return errors.Join(ErrConfiguration, ErrEmptyTenant)
	}

	closeErr := m.registry.RemoveTenant(ctx, tenant)

	if err := m.adapter.DropTenant(ctx, tenant); err != nil {
		return errors.Join(
			translate("drop tenant", tenant, ErrTenantNotFound, err, m.adapter.RescuableErrors()),
			closeErr,
		)
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "Tenant dropped", logger.Tenant(tenant))

	return closeErr
}

// TenantNames returns the names of every tenant known to the provider.
func (m *Manager[P]) TenantNames(ctx context.Context) ([]string, error) {
	return m.cfg.TenantNames(ctx)
}

// TenantsConfig returns every tenant with its mapped configuration.
func (m *Manager[P]) TenantsConfig(ctx context.Context) (Tenants, error) {
	return m.cfg.TenantsConfig(ctx)
}

// Close closes every pool. The manager cannot build pools afterwards.
func (m *Manager[P]) Close(ctx context.Context) error {
	return m.registry.Close(ctx)
}
