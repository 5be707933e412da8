package tenancy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
)

// Switcher changes the current tenant of an execution context. A switch
// never partially applies: the pool is obtained before the context changes.
type Switcher[P any] struct {
	cfg      *Config
	resolver *Resolver
	registry *Registry[P]
	logger   *slog.Logger
	metrics  *Metrics
}

// NewSwitcher creates a switcher. logger and metrics may be nil.
func NewSwitcher[P any](cfg *Config, registry *Registry[P], log *slog.Logger, metrics *Metrics) *Switcher[P] {
	if log == nil {
		log = slog.Default()
	}
	return &Switcher[P]{
		cfg:      cfg,
		resolver: NewResolver(cfg),
		registry: registry,
		logger:   log.With(logger.Component("tenancy.switcher")),
		metrics:  metrics,
	}
}

// Resolve completes req with the tenant's mapped configuration when the
// strategy needs it and returns the resolved descriptor.
func (s *Switcher[P]) Resolve(ctx context.Context, req Request) (Descriptor, error) {
	if req.Tenant == "" {
		req.Tenant = s.cfg.defaultTenant
	}
	if req.TenantConfig == nil && s.cfg.strategy.needsTenantConfig() {
		tenants, err := s.cfg.TenantsConfig(ctx)
		if err != nil {
			return Descriptor{}, err
		}
		mapped, known := tenants[req.Tenant]
		if !known && s.mustBeMapped(req) {
			return Descriptor{}, newError("resolve", req.Tenant, ErrTenantNotFound, nil)
		}
		req.TenantConfig = mapped.Clone()
	}
	return s.resolver.Resolve(req)
}

// mustBeMapped reports whether req can only be served from the tenant's own
// entry. Under the config map strategy an unmapped tenant would otherwise
// fall back to the shared base connection.
func (s *Switcher[P]) mustBeMapped(req Request) bool {
	if s.cfg.strategy != StrategyConfigMap || req.Tenant == s.cfg.defaultTenant {
		return false
	}
	owner := req.Owner
	if owner == "" {
		owner = s.cfg.defaultOwner
	}
	return !s.cfg.IsExcluded(owner)
}

// Pool returns the pool described by req, building it if needed.
func (s *Switcher[P]) Pool(ctx context.Context, req Request) (P, error) {
	d, err := s.Resolve(ctx, req)
	if err != nil {
		var zero P
		return zero, err
	}
	return s.registry.GetOrCreate(ctx, d)
}

// connect obtains the default owner's pool for tenant and clears its query cache.
func (s *Switcher[P]) connect(ctx context.Context, tenant string) error {
	pool, err := s.Pool(ctx, Request{Tenant: tenant})
	if err != nil {
		return err
	}
	if c, ok := any(pool).(QueryCacheClearer); ok {
		c.ClearQueryCache()
	}
	return nil
}

// Switch makes tenant current for the execution context of ctx until the
// next switch. An empty tenant selects the default tenant. On failure the
// current tenant is left unchanged.
func (s *Switcher[P]) Switch(ctx context.Context, tenant string) error {
	tc, ok := FromContext(ctx)
	if !ok {
		return ErrNoTenantContext
	}
	if tenant == "" {
		tenant = s.cfg.defaultTenant
	}

	err := s.connect(ctx, tenant)
	s.metrics.switched(err)
	if err != nil {
		return err
	}

	tc.Set(tenant)
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Tenant switched", logger.Tenant(tenant))
	return nil
}

// Scoped runs work with tenant current and restores the previous tenant on
// every exit path: normal return, error, panic, and cancellation of ctx.
// If the switch itself fails, work never runs and the context is untouched.
// If restoring the previous tenant fails, the context falls back to the
// default tenant and the restoration error is joined to work's error.
func (s *Switcher[P]) Scoped(ctx context.Context, tenant string, work func(ctx context.Context) error) (err error) {
	tc, ok := FromContext(ctx)
	if !ok {
		ctx = NewContext(ctx, s.cfg.defaultTenant)
		tc, _ = FromContext(ctx)
	}
	if tenant == "" {
		tenant = s.cfg.defaultTenant
	}

	connErr := s.connect(ctx, tenant)
	s.metrics.switched(connErr)
	if connErr != nil {
		return connErr
	}

	previous := tc.Push(tenant)
	s.logger.LogAttrs(ctx, slog.LevelDebug, "Scoped switch entered",
		logger.Tenant(tenant),
		logger.PreviousTenant(previous),
	)

	defer func() {
		if rerr := s.restore(context.WithoutCancel(ctx), tc, previous); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return work(ctx)
}

// Reset returns the execution context of ctx to the default tenant.
func (s *Switcher[P]) Reset(ctx context.Context) error {
	tc, ok := FromContext(ctx)
	if !ok {
		return ErrNoTenantContext
	}
	tc.Reset()
	return nil
}

// restore switches back to previous. If that fails it retries the default
// tenant up to the configured number of attempts and, failing that, forces
// the context to the default tenant so it is never left undefined.
func (s *Switcher[P]) restore(ctx context.Context, tc *TenantContext, previous string) error {
	firstErr := s.connect(ctx, previous)
	if firstErr == nil {
		tc.Restore(previous)
		return nil
	}

	s.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to restore previous tenant, falling back to default",
		logger.PreviousTenant(previous),
		logger.Error(firstErr),
	)

	def := s.cfg.defaultTenant
	var lastErr error
	for attempt := range s.cfg.restoreAttempts {
		if lastErr = s.connect(ctx, def); lastErr == nil {
			break
		}
		s.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to connect default tenant",
			logger.Tenant(def),
			logger.RetryCount(attempt+1),
			logger.Error(lastErr),
		)
	}

	tc.Restore(def)
	s.metrics.restoreFallback()

	if lastErr != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "Default tenant unreachable, context forced to default",
			logger.Tenant(def),
			logger.Error(lastErr),
		)
		return errors.Join(ErrRestoreFailed, firstErr, lastErr)
	}
	return errors.Join(ErrRestoreFailed, firstErr)
}
