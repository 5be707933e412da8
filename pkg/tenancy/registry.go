package tenancy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
)

type registryEntry[P any] struct {
	desc Descriptor
	pool P
}

// Registry caches one pool per descriptor. Lookups of existing pools take no
// lock; construction is serialized per descriptor key so that concurrent
// first accesses build exactly one pool, while unrelated descriptors never
// wait on each other.
type Registry[P any] struct {
	adapter Adapter[P]
	logger  *slog.Logger
	metrics *Metrics

	pools  sync.Map // descriptor key -> *registryEntry[P]
	locks  sync.Map // descriptor key -> *semaphore.Weighted
	closed atomic.Bool
}

// NewRegistry creates a registry that builds pools with adapter.
// logger and metrics may be nil.
func NewRegistry[P any](adapter Adapter[P], log *slog.Logger, metrics *Metrics) *Registry[P] {
	if log == nil {
		log = slog.Default()
	}
	return &Registry[P]{
		adapter: adapter,
		logger:  log.With(logger.Component("tenancy.registry")),
		metrics: metrics,
	}
}

// Get returns the cached pool for d without building one.
func (r *Registry[P]) Get(d Descriptor) (P, bool) {
	if v, ok := r.pools.Load(d.Key()); ok {
		return v.(*registryEntry[P]).pool, true
	}
	var zero P
	return zero, false
}

// GetOrCreate returns the pool for d, building it on first access. For N
// concurrent first calls exactly one build runs and every caller receives
// the same pool. Waiting for another caller's build honours ctx.
func (r *Registry[P]) GetOrCreate(ctx context.Context, d Descriptor) (P, error) {
	var zero P
	if pool, ok := r.Get(d); ok {
		return pool, nil
	}
	if r.closed.Load() {
		return zero, ErrRegistryClosed
	}

	key := d.Key()
	lock, err := r.acquire(ctx, key)
	if err != nil {
		return zero, err
	}
	defer lock.Release(1)

	if pool, ok := r.Get(d); ok {
		return pool, nil
	}
	if r.closed.Load() {
		r.locks.CompareAndDelete(key, lock)
		return zero, ErrRegistryClosed
	}

	pool, err := r.adapter.BuildPool(ctx, d)
	if err != nil {
		r.locks.CompareAndDelete(key, lock)
		err = translate("build pool", d.Tenant(), ErrTenantNotFound, err, r.adapter.RescuableErrors())
		r.metrics.buildFailed(err)
		r.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to build pool",
			logger.Descriptor(d),
			logger.Error(err),
		)
		return zero, err
	}

	// Close may have started while the pool was being built.
	if r.closed.Load() {
		r.locks.CompareAndDelete(key, lock)
		if cerr := r.adapter.ClosePool(context.WithoutCancel(ctx), pool); cerr != nil {
			return zero, errors.Join(ErrRegistryClosed, ErrClosePool, cerr)
		}
		return zero, ErrRegistryClosed
	}

	r.pools.Store(key, &registryEntry[P]{desc: d, pool: pool})
	r.metrics.poolBuilt()
	r.logger.LogAttrs(ctx, slog.LevelDebug, "Pool built", logger.Descriptor(d))

	return pool, nil
}

// Remove drains and closes the pool for d and forgets it. The next
// GetOrCreate for d builds a new pool. Removing an unknown descriptor is a
// no-op.
func (r *Registry[P]) Remove(ctx context.Context, d Descriptor) error {
	return r.remove(ctx, d.Key())
}

func (r *Registry[P]) remove(ctx context.Context, key string) error {
	lock, err := r.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer lock.Release(1)
	defer r.locks.CompareAndDelete(key, lock)

	v, ok := r.pools.LoadAndDelete(key)
	if !ok {
		return nil
	}
	entry := v.(*registryEntry[P])

	if err := r.adapter.ClosePool(ctx, entry.pool); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "Failed to close pool",
			logger.Descriptor(entry.desc),
			logger.Error(err),
		)
		return errors.Join(ErrClosePool, err)
	}

	r.metrics.poolClosed()
	r.logger.LogAttrs(ctx, slog.LevelDebug, "Pool removed", logger.Descriptor(entry.desc))
	return nil
}

// RemoveTenant removes every pool bound to tenant.
func (r *Registry[P]) RemoveTenant(ctx context.Context, tenant string) error {
	var errs []error
	for _, d := range r.Descriptors() {
		if d.Tenant() != tenant {
			continue
		}
		if err := r.Remove(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Descriptors returns the descriptors of all live pools.
func (r *Registry[P]) Descriptors() []Descriptor {
	var out []Descriptor
	r.pools.Range(func(_, v any) bool {
		out = append(out, v.(*registryEntry[P]).desc)
		return true
	})
	return out
}

// Len returns the number of live pools.
func (r *Registry[P]) Len() int {
	n := 0
	r.pools.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close removes every pool and rejects further builds. Builds already in
// flight are waited for and their pools closed.
func (r *Registry[P]) Close(ctx context.Context) error {
	r.closed.Store(true)

	keys := make(map[string]struct{})
	r.locks.Range(func(k, _ any) bool {
		keys[k.(string)] = struct{}{}
		return true
	})
	r.pools.Range(func(k, _ any) bool {
		keys[k.(string)] = struct{}{}
		return true
	})

	var errs []error
	for key := range keys {
		if err := r.remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// acquire takes the construction lock of key. Locks are dropped once their
// key has no pool, so a caller that wakes up holding a dropped lock retries
// with the current one.
func (r *Registry[P]) acquire(ctx context.Context, key string) (*semaphore.Weighted, error) {
	for {
		lock := r.lock(key)
		if err := lock.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		if cur, ok := r.locks.Load(key); ok && cur == lock {
			return lock, nil
		}
		lock.Release(1)
	}
}

func (r *Registry[P]) lock(key string) *semaphore.Weighted {
	if v, ok := r.locks.Load(key); ok {
		return v.(*semaphore.Weighted)
	}
	v, _ := r.locks.LoadOrStore(key, semaphore.NewWeighted(1))
	return v.(*semaphore.Weighted)
}
