package tenancy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

type memoryManager = tenancy.Manager[*tenancy.MemoryPool]

func newManager(t *testing.T, adapter *tenancy.MemoryAdapter, opts ...tenancy.ManagerOption) *memoryManager {
	t.Helper()
	if adapter == nil {
		adapter = tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public", "acme", "globex"))
	}
	cfg := newConfig(t,
		tenancy.WithStrategy(tenancy.StrategySchema),
		tenancy.WithPersistentSchemas("shared"),
	)
	mgr, err := tenancy.New[*tenancy.MemoryPool](cfg, adapter, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return mgr
}

func currentPool(t *testing.T, mgr *memoryManager, ctx context.Context) *tenancy.MemoryPool {
	t.Helper()
	pool, err := mgr.Pool(ctx)
	require.NoError(t, err)
	return pool
}

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t, tenancy.WithStrategy(tenancy.StrategySchema))

	_, err := tenancy.New[*tenancy.MemoryPool](nil, tenancy.NewMemoryAdapter())
	assert.ErrorIs(t, err, tenancy.ErrNotConfigured)

	_, err = tenancy.New[*tenancy.MemoryPool](cfg, nil)
	assert.ErrorIs(t, err, tenancy.ErrNilAdapter)

	_, err = tenancy.New[*tenancy.MemoryPool](cfg, tenancy.NewMemoryAdapter(),
		tenancy.WithCreateHook[string](func(ctx context.Context, tenant string, pool string) error { return nil }),
	)
	assert.ErrorIs(t, err, tenancy.ErrConfiguration)
	assert.ErrorIs(t, err, tenancy.ErrMismatchedHookType)

	mgr, err := tenancy.New[*tenancy.MemoryPool](cfg, tenancy.NewMemoryAdapter())
	require.NoError(t, err)
	assert.Same(t, cfg, mgr.Config())
	assert.NotNil(t, mgr.Registry())
}

func TestManager_Isolation(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	ctx := mgr.NewContext(context.Background())
	assert.Equal(t, "public", mgr.Current(ctx))

	require.NoError(t, mgr.Switch(ctx, "acme"))
	require.NoError(t, currentPool(t, mgr, ctx).Insert(ctx, "users", tenancy.Row{"name": "alice"}))

	require.NoError(t, mgr.Switch(ctx, "globex"))
	rows, err := currentPool(t, mgr, ctx).Select(ctx, "users")
	require.NoError(t, err)
	assert.Empty(t, rows)

	marker, err := mgr.Marker(ctx)
	require.NoError(t, err)
	assert.Equal(t, "globex", marker)

	require.NoError(t, mgr.Switch(ctx, "acme"))
	rows, err = currentPool(t, mgr, ctx).Select(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []tenancy.Row{{"name": "alice"}}, rows)

	d, err := mgr.Descriptor(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "shared"}, d.Config().Strings(tenancy.KeySearchPath))

	require.NoError(t, mgr.Switch(ctx, ""))
	assert.Equal(t, "public", mgr.Current(ctx))
}

func TestManager_SwitchFailureLeavesContext(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	ctx := mgr.NewContext(context.Background())
	require.NoError(t, mgr.Switch(ctx, "acme"))

	err := mgr.Switch(ctx, "ghost")
	assert.True(t, tenancy.IsTenantNotFound(err))
	assert.Equal(t, "acme", mgr.Current(ctx))
}

func TestManager_ConfigMapRejectsUnmappedTenant(t *testing.T) {
	t.Parallel()

	cfg := newConfig(t,
		tenancy.WithStrategy(tenancy.StrategyConfigMap),
		tenancy.WithBaseConfig(tenancy.ConnConfig{tenancy.KeyDatabase: "appdb"}),
		tenancy.WithOwner("audit", tenancy.ConnConfig{tenancy.KeyDatabase: "auditdb"}),
		tenancy.WithExcludedOwners("audit"),
		tenancy.WithTenants(tenancy.MapProvider(map[string]tenancy.ConnConfig{
			"acme": {tenancy.KeyDatabase: "acme_db"},
		})),
	)
	// The adapter would accept "ghost", so only resolution can reject it.
	adapter := tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public", "acme", "ghost"))
	mgr, err := tenancy.New[*tenancy.MemoryPool](cfg, adapter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	ctx := mgr.NewContext(context.Background())
	require.NoError(t, mgr.Switch(ctx, "acme"))
	assert.Equal(t, "acme_db", currentPool(t, mgr, ctx).Descriptor().Config().String(tenancy.KeyDatabase))

	err = mgr.Switch(ctx, "ghost")
	assert.True(t, tenancy.IsTenantNotFound(err))
	var terr *tenancy.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ghost", terr.Tenant)
	assert.Equal(t, "acme", mgr.Current(ctx))

	err = mgr.Scoped(ctx, "ghost", func(ctx context.Context) error {
		t.Error("work must not run for an unmapped tenant")
		return nil
	})
	assert.True(t, tenancy.IsTenantNotFound(err))
	assert.Equal(t, 1, adapter.Builds())

	// The default tenant and excluded owners use the base configuration.
	require.NoError(t, mgr.Reset(ctx))
	d, err := mgr.Descriptor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "appdb", d.Config().String(tenancy.KeyDatabase))

	require.NoError(t, mgr.Switch(ctx, "acme"))
	audit, err := mgr.Descriptor(ctx, tenancy.ForOwner("audit"))
	require.NoError(t, err)
	assert.Equal(t, "public", audit.Tenant())
	assert.Equal(t, "auditdb", audit.Config().String(tenancy.KeyDatabase))
}

func TestManager_NoTenantContext(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	ctx := context.Background()

	assert.Equal(t, "public", mgr.Current(ctx))
	assert.ErrorIs(t, mgr.Switch(ctx, "acme"), tenancy.ErrNoTenantContext)
	assert.ErrorIs(t, mgr.Reset(ctx), tenancy.ErrNoTenantContext)

	var seen string
	require.NoError(t, mgr.Scoped(ctx, "acme", func(ctx context.Context) error {
		seen = mgr.Current(ctx)
		return nil
	}))
	assert.Equal(t, "acme", seen)
	assert.Equal(t, "public", mgr.Current(ctx))
}

func TestManager_QueryCacheClearedOnSwitch(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	ctx := mgr.NewContext(context.Background())

	require.NoError(t, mgr.Switch(ctx, "acme"))
	pool := currentPool(t, mgr, ctx)
	assert.Equal(t, 1, pool.QueryCacheClears())

	require.NoError(t, mgr.Switch(ctx, "globex"))
	require.NoError(t, mgr.Switch(ctx, "acme"))
	assert.Equal(t, 2, pool.QueryCacheClears())
	assert.Same(t, pool, currentPool(t, mgr, ctx))
}

func TestManager_CreateDrop(t *testing.T) {
	t.Parallel()

	adapter := tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public", "acme"))
	mgr := newManager(t, adapter)
	ctx := mgr.NewContext(context.Background())

	require.NoError(t, mgr.Create(ctx, "initech"))
	assert.Equal(t, []string{"acme", "initech", "public"}, adapter.Tenants())

	err := mgr.Create(ctx, "initech")
	assert.True(t, tenancy.IsTenantAlreadyExists(err))
	var te *tenancy.Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "create tenant", te.Op)
	assert.Equal(t, "initech", te.Tenant)

	require.NoError(t, mgr.Switch(ctx, "initech"))
	pool := currentPool(t, mgr, ctx)
	require.NoError(t, mgr.Reset(ctx))

	require.NoError(t, mgr.Drop(ctx, "initech"))
	assert.True(t, pool.Closed())
	assert.True(t, tenancy.IsTenantNotFound(mgr.Switch(ctx, "initech")))
	assert.True(t, tenancy.IsTenantNotFound(mgr.Drop(ctx, "initech")))

	assert.ErrorIs(t, mgr.Create(ctx, ""), tenancy.ErrEmptyTenant)
	assert.ErrorIs(t, mgr.Drop(ctx, " "), tenancy.ErrConfiguration)
}

func TestManager_DroppedUnitRejectsQueries(t *testing.T) {
	t.Parallel()

	adapter := tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public", "acme"))
	mgr := newManager(t, adapter)
	ctx := mgr.NewContext(context.Background())

	require.NoError(t, mgr.Switch(ctx, "acme"))
	pool := currentPool(t, mgr, ctx)
	require.NoError(t, adapter.DropTenant(ctx, "acme"))

	_, err := pool.Select(ctx, "users")
	assert.True(t, tenancy.IsTenantNotFound(err))
}

func TestManager_CreateHooks(t *testing.T) {
	t.Parallel()

	t.Run("hooks run scoped to the new tenant", func(t *testing.T) {
		t.Parallel()

		var seen []string
		var mgr *memoryManager
		mgr = newManager(t, nil,
			tenancy.WithCreateHook[*tenancy.MemoryPool](func(ctx context.Context, tenant string, pool *tenancy.MemoryPool) error {
				seen = append(seen, mgr.Current(ctx))
				return pool.Insert(ctx, "plans", tenancy.Row{"name": "free"})
			}),
		)
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "acme"))

		require.NoError(t, mgr.Create(ctx, "initech"))
		assert.Equal(t, []string{"initech"}, seen)
		assert.Equal(t, "acme", mgr.Current(ctx))

		require.NoError(t, mgr.Scoped(ctx, "initech", func(ctx context.Context) error {
			rows, err := currentPool(t, mgr, ctx).Select(ctx, "plans")
			require.NoError(t, err)
			assert.Len(t, rows, 1)
			return nil
		}))
	})

	t.Run("hook failure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("seed failed")
		adapter := tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public"))
		mgr := newManager(t, adapter,
			tenancy.WithCreateHook[*tenancy.MemoryPool](func(ctx context.Context, tenant string, pool *tenancy.MemoryPool) error {
				return boom
			}),
		)
		ctx := mgr.NewContext(context.Background())

		err := mgr.Create(ctx, "initech")
		assert.ErrorIs(t, err, tenancy.ErrCreateHookFailed)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, adapter.Tenants(), "initech")
		assert.Equal(t, "public", mgr.Current(ctx))
	})
}

func TestManager_PoolOptions(t *testing.T) {
	t.Parallel()

	adapter := tenancy.NewMemoryAdapter(tenancy.WithMemoryTenants("public", "acme"))
	cfg := newConfig(t,
		tenancy.WithStrategy(tenancy.StrategySchema),
		tenancy.WithOwner("audit", nil),
		tenancy.WithExcludedOwners("audit"),
	)
	mgr, err := tenancy.New[*tenancy.MemoryPool](cfg, adapter)
	require.NoError(t, err)
	ctx := mgr.NewContext(context.Background())
	require.NoError(t, mgr.Switch(ctx, "acme"))

	writer := currentPool(t, mgr, ctx)
	reader, err := mgr.Pool(ctx, tenancy.ForRole(tenancy.RoleReading))
	require.NoError(t, err)
	assert.NotSame(t, writer, reader)

	audit, err := mgr.Pool(ctx, tenancy.ForOwner("audit"))
	require.NoError(t, err)
	assert.Equal(t, "public", audit.Descriptor().Tenant())

	sharded, err := mgr.Descriptor(ctx, tenancy.ForShard("eu"))
	require.NoError(t, err)
	assert.Equal(t, "eu", sharded.Shard())

	_, err = mgr.Pool(ctx, tenancy.ForOwner("billing"))
	assert.ErrorIs(t, err, tenancy.ErrUnknownOwner)

	assert.Equal(t, 3, mgr.Registry().Len())
	require.NoError(t, mgr.Close(ctx))
	assert.True(t, writer.Closed())
	assert.ErrorIs(t, mgr.Switch(ctx, "acme"), tenancy.ErrRegistryClosed)
}

func TestManager_Scoped(t *testing.T) {
	t.Parallel()

	t.Run("nested", func(t *testing.T) {
		t.Parallel()
		mgr := newManager(t, nil)
		ctx := mgr.NewContext(context.Background())

		err := mgr.Scoped(ctx, "acme", func(ctx context.Context) error {
			assert.Equal(t, "acme", mgr.Current(ctx))
			return mgr.Scoped(ctx, "globex", func(ctx context.Context) error {
				assert.Equal(t, "globex", mgr.Current(ctx))
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, "public", mgr.Current(ctx))

		tc, _ := tenancy.FromContext(ctx)
		assert.Zero(t, tc.Depth())
	})

	t.Run("restores on error", func(t *testing.T) {
		t.Parallel()
		mgr := newManager(t, nil)
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "globex"))

		boom := errors.New("boom")
		err := mgr.Scoped(ctx, "acme", func(ctx context.Context) error { return boom })
		assert.Equal(t, boom, err)
		assert.Equal(t, "globex", mgr.Current(ctx))
	})

	t.Run("restores on panic", func(t *testing.T) {
		t.Parallel()
		mgr := newManager(t, nil)
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "globex"))

		assert.PanicsWithValue(t, "boom", func() {
			_ = mgr.Scoped(ctx, "acme", func(ctx context.Context) error { panic("boom") })
		})
		assert.Equal(t, "globex", mgr.Current(ctx))
	})

	t.Run("restores on cancellation", func(t *testing.T) {
		t.Parallel()
		mgr := newManager(t, nil)
		base := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(base, "globex"))

		ctx, cancel := context.WithCancel(base)
		err := mgr.Scoped(ctx, "acme", func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, tenancy.ErrRestoreFailed)
		assert.Equal(t, "globex", mgr.Current(base))
	})

	t.Run("failed switch never runs work", func(t *testing.T) {
		t.Parallel()
		mgr := newManager(t, nil)
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "acme"))

		ran := false
		err := mgr.Scoped(ctx, "ghost", func(ctx context.Context) error {
			ran = true
			return nil
		})
		assert.True(t, tenancy.IsTenantNotFound(err))
		assert.False(t, ran)
		assert.Equal(t, "acme", mgr.Current(ctx))
	})
}

func TestManager_RestoreFallback(t *testing.T) {
	t.Parallel()

	t.Run("previous tenant dropped", func(t *testing.T) {
		t.Parallel()
		metrics := tenancy.NewMetrics(prometheus.NewRegistry())
		mgr := newManager(t, nil, tenancy.WithMetrics(metrics))
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "acme"))

		err := mgr.Scoped(ctx, "globex", func(ctx context.Context) error {
			return mgr.Drop(ctx, "acme")
		})
		assert.ErrorIs(t, err, tenancy.ErrRestoreFailed)
		assert.True(t, tenancy.IsTenantNotFound(err))
		assert.Equal(t, "public", mgr.Current(ctx))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RestoreFallbacks))
	})

	t.Run("default tenant unreachable", func(t *testing.T) {
		t.Parallel()
		var broken atomic.Bool
		var defaultAttempts atomic.Int32
		adapter := tenancy.NewMemoryAdapter(
			tenancy.WithMemoryTenants("public", "acme", "globex"),
			tenancy.WithBuildHook(func(ctx context.Context, d tenancy.Descriptor) error {
				if broken.Load() && d.Tenant() == "public" {
					defaultAttempts.Add(1)
					return tenancy.ErrMemoryUnavailable
				}
				return nil
			}),
		)
		mgr := newManager(t, adapter)
		ctx := mgr.NewContext(context.Background())
		require.NoError(t, mgr.Switch(ctx, "acme"))

		err := mgr.Scoped(ctx, "globex", func(ctx context.Context) error {
			broken.Store(true)
			return mgr.Drop(ctx, "acme")
		})
		assert.ErrorIs(t, err, tenancy.ErrRestoreFailed)
		assert.ErrorIs(t, err, tenancy.ErrMemoryUnavailable)
		assert.Equal(t, "public", mgr.Current(ctx))
		assert.Equal(t, int32(tenancy.DefaultRestoreAttempts), defaultAttempts.Load())
	})
}

func TestManager_ForkedGoroutines(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	root := mgr.NewContext(context.Background())

	var g errgroup.Group
	for i := range 40 {
		tenant := []string{"acme", "globex"}[i%2]
		g.Go(func() error {
			ctx := mgr.Fork(root)
			for range 10 {
				if err := mgr.Switch(ctx, tenant); err != nil {
					return err
				}
				runtime.Gosched()
				pool, err := mgr.Pool(ctx)
				if err != nil {
					return err
				}
				if got := pool.Descriptor().Tenant(); got != tenant {
					return fmt.Errorf("goroutine for %s got pool of %s", tenant, got)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, "public", mgr.Current(root))
}

func TestManager_Tenants(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, nil)
	names, err := mgr.TenantNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, names)

	tenants, err := mgr.TenantsConfig(context.Background())
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}

func TestManager_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := tenancy.NewMetrics(reg)
	mgr := newManager(t, nil, tenancy.WithMetrics(metrics))
	ctx := mgr.NewContext(context.Background())

	require.NoError(t, mgr.Switch(ctx, "acme"))
	require.Error(t, mgr.Switch(ctx, "ghost"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Switches.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Switches.WithLabelValues("tenant_not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolBuildFailures.WithLabelValues("tenant_not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolsBuilt))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolsActive))

	require.NoError(t, mgr.Drop(ctx, "acme"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PoolsClosed))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PoolsActive))

	count, err := testutil.GatherAndCount(reg, "tenancy_switches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestManager_Logging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mgr := newManager(t, nil, tenancy.WithLogger(log))
	ctx := mgr.NewContext(context.Background())

	require.NoError(t, mgr.Create(ctx, "initech"))
	require.NoError(t, mgr.Switch(ctx, "initech"))

	var created, switched bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		switch rec["msg"] {
		case "Tenant created":
			created = true
			assert.Equal(t, "initech", rec["tenant"])
			assert.Equal(t, "tenancy", rec["component"])
		case "Tenant switched":
			switched = true
			assert.Equal(t, "tenancy.switcher", rec["component"])
		}
	}
	assert.True(t, created)
	assert.True(t, switched)
}
