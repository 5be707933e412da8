package tenancy

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrMemoryUnavailable is the rescuable error of MemoryAdapter. Build hooks
// return it to simulate an unreachable backend.
var ErrMemoryUnavailable = errors.New("memory backend unavailable")

// ErrPoolClosed is returned when a closed MemoryPool is used.
var ErrPoolClosed = errors.New("pool is closed")

// Row is a single record stored by MemoryPool.
type Row map[string]any

// memoryUnit is the isolation unit of one tenant.
type memoryUnit struct {
	mu      sync.RWMutex
	tables  map[string][]Row
	dropped atomic.Bool
}

// MemoryAdapter keeps every tenant in process memory. It backs tests and
// examples that need real isolation semantics without a database server.
type MemoryAdapter struct {
	mu        sync.Mutex
	units     map[string]*memoryUnit
	buildHook func(ctx context.Context, d Descriptor) error
	builds    atomic.Int64
	closes    atomic.Int64
}

// MemoryOption configures a MemoryAdapter.
type MemoryOption func(*MemoryAdapter)

// WithBuildHook runs hook before every pool build. A non-nil error aborts the
// build. Use it to inject latency or failures.
func WithBuildHook(hook func(ctx context.Context, d Descriptor) error) MemoryOption {
	return func(a *MemoryAdapter) {
		a.buildHook = hook
	}
}

// WithMemoryTenants seeds isolation units for tenants.
func WithMemoryTenants(tenants ...string) MemoryOption {
	return func(a *MemoryAdapter) {
		for _, t := range tenants {
			a.units[t] = newMemoryUnit()
		}
	}
}

// NewMemoryAdapter creates an adapter with no tenants unless seeded.
func NewMemoryAdapter(opts ...MemoryOption) *MemoryAdapter {
	a := &MemoryAdapter{units: make(map[string]*memoryUnit)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newMemoryUnit() *memoryUnit {
	return &memoryUnit{tables: make(map[string][]Row)}
}

// CreateTenant implements Adapter.
func (a *MemoryAdapter) CreateTenant(ctx context.Context, tenant string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.units[tenant]; ok {
		return ErrTenantAlreadyExists
	}
	a.units[tenant] = newMemoryUnit()
	return nil
}

// DropTenant implements Adapter.
func (a *MemoryAdapter) DropTenant(ctx context.Context, tenant string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	unit, ok := a.units[tenant]
	if !ok {
		return ErrTenantNotFound
	}
	unit.dropped.Store(true)
	delete(a.units, tenant)
	return nil
}

// BuildPool implements Adapter.
func (a *MemoryAdapter) BuildPool(ctx context.Context, d Descriptor) (*MemoryPool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.buildHook != nil {
		if err := a.buildHook(ctx, d); err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	unit, ok := a.units[d.Tenant()]
	a.mu.Unlock()
	if !ok {
		return nil, ErrTenantNotFound
	}

	a.builds.Add(1)
	return &MemoryPool{
		id:    uuid.New(),
		desc:  d,
		unit:  unit,
		cache: make(map[string][]Row),
	}, nil
}

// ClosePool implements Adapter.
func (a *MemoryAdapter) ClosePool(ctx context.Context, pool *MemoryPool) error {
	if pool == nil {
		return nil
	}
	if pool.closed.CompareAndSwap(false, true) {
		a.closes.Add(1)
	}
	return nil
}

// CurrentMarker implements Adapter. It reports the first search path entry,
// else the database name, else the tenant.
func (a *MemoryAdapter) CurrentMarker(ctx context.Context, pool *MemoryPool) (string, error) {
	if pool.closed.Load() {
		return "", ErrPoolClosed
	}
	cfg := pool.desc.config
	if path := cfg.Strings(KeySearchPath); len(path) > 0 {
		return path[0], nil
	}
	if db := cfg.String(KeyDatabase); db != "" {
		return db, nil
	}
	return pool.desc.tenant, nil
}

// RescuableErrors implements Adapter.
func (a *MemoryAdapter) RescuableErrors() []error {
	return []error{ErrMemoryUnavailable}
}

// Tenants returns the tenants that currently have an isolation unit.
func (a *MemoryAdapter) Tenants() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.units))
}

// Builds returns how many pools were built.
func (a *MemoryAdapter) Builds() int {
	return int(a.builds.Load())
}

// Closes returns how many pools were closed.
func (a *MemoryAdapter) Closes() int {
	return int(a.closes.Load())
}

// MemoryPool is the pool type of MemoryAdapter. It caches Select results
// until the cache is cleared or the table is written.
type MemoryPool struct {
	id     uuid.UUID
	desc   Descriptor
	unit   *memoryUnit
	closed atomic.Bool
	clears atomic.Int64

	mu    sync.Mutex
	cache map[string][]Row
}

// ID identifies the pool instance.
func (p *MemoryPool) ID() uuid.UUID { return p.id }

// Descriptor returns the descriptor the pool was built for.
func (p *MemoryPool) Descriptor() Descriptor { return p.desc }

// Closed reports whether the pool was closed.
func (p *MemoryPool) Closed() bool { return p.closed.Load() }

// Insert appends row to table.
func (p *MemoryPool) Insert(ctx context.Context, table string, row Row) error {
	if err := p.check(ctx); err != nil {
		return err
	}

	p.unit.mu.Lock()
	p.unit.tables[table] = append(p.unit.tables[table], maps.Clone(row))
	p.unit.mu.Unlock()

	p.mu.Lock()
	delete(p.cache, table)
	p.mu.Unlock()
	return nil
}

// Select returns every row of table.
func (p *MemoryPool) Select(ctx context.Context, table string) ([]Row, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if rows, ok := p.cache[table]; ok {
		return cloneRows(rows), nil
	}

	p.unit.mu.RLock()
	rows := cloneRows(p.unit.tables[table])
	p.unit.mu.RUnlock()

	p.cache[table] = rows
	return cloneRows(rows), nil
}

// ClearQueryCache implements QueryCacheClearer.
func (p *MemoryPool) ClearQueryCache() {
	p.mu.Lock()
	clear(p.cache)
	p.mu.Unlock()
	p.clears.Add(1)
}

// QueryCacheClears returns how many times the query cache was cleared.
func (p *MemoryPool) QueryCacheClears() int {
	return int(p.clears.Load())
}

func (p *MemoryPool) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if p.unit.dropped.Load() {
		return newError("query", p.desc.tenant, ErrTenantNotFound, nil)
	}
	return nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}
