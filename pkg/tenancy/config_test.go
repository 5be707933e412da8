package tenancy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t, tenancy.WithStrategy(tenancy.StrategySchema))

		assert.Equal(t, tenancy.StrategySchema, cfg.Strategy())
		assert.Equal(t, tenancy.DefaultTenant, cfg.DefaultTenant())
		assert.Equal(t, tenancy.DefaultOwner, cfg.DefaultOwner())
		assert.Equal(t, tenancy.DefaultDatabaseNameFormat, cfg.DatabaseNameFormat())
		assert.Equal(t, tenancy.DefaultRestoreAttempts, cfg.RestoreAttempts())
		assert.Equal(t, []string{tenancy.DefaultOwner}, cfg.Owners())
		assert.Empty(t, cfg.PersistentSchemas())

		names, err := cfg.TenantNames(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"acme", "globex"}, names)
	})

	t.Run("default owner", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t,
			tenancy.WithStrategy(tenancy.StrategySchema),
			tenancy.WithDefaultOwner("app"),
			tenancy.WithBaseConfig(tenancy.ConnConfig{"host": "db"}),
			tenancy.WithExcludedOwners("audit", "audit"),
			tenancy.WithOwner("audit", nil),
		)
		assert.Equal(t, "app", cfg.DefaultOwner())
		assert.Equal(t, []string{"app", "audit"}, cfg.Owners())
		assert.Equal(t, []string{"audit"}, cfg.ExcludedOwners())
		assert.True(t, cfg.IsExcluded("audit"))

		base, ok := cfg.BaseConfig("app")
		require.True(t, ok)
		assert.Equal(t, "db", base.String("host"))
	})

	tests := []struct {
		name string
		opts []tenancy.Option
		want error
	}{
		{"no strategy", []tenancy.Option{tenancy.WithTenantNames("acme")}, tenancy.ErrNoStrategy},
		{"unknown strategy", []tenancy.Option{tenancy.WithStrategy(9), tenancy.WithTenantNames("acme")}, tenancy.ErrUnknownStrategy},
		{"no tenants", []tenancy.Option{tenancy.WithStrategy(tenancy.StrategySchema)}, tenancy.ErrNoTenantsProvider},
		{"empty default tenant", []tenancy.Option{tenancy.WithStrategy(tenancy.StrategySchema), tenancy.WithTenantNames(), tenancy.WithDefaultTenant(" ")}, tenancy.ErrEmptyTenant},
		{"database name without verb", []tenancy.Option{tenancy.WithStrategy(tenancy.StrategyDatabaseName), tenancy.WithTenantNames(), tenancy.WithDatabaseNameFormat("app")}, tenancy.ErrInvalidDatabaseName},
		{"database name with extra verb", []tenancy.Option{tenancy.WithStrategy(tenancy.StrategyDatabaseName), tenancy.WithTenantNames(), tenancy.WithDatabaseNameFormat("%s_%d")}, tenancy.ErrInvalidDatabaseName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := tenancy.NewConfig(tt.opts...)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, tenancy.ErrConfiguration)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, tenancy.IsConfigurationError(err))
		})
	}

	t.Run("restore attempts", func(t *testing.T) {
		t.Parallel()
		_, err := tenancy.NewConfig(
			tenancy.WithStrategy(tenancy.StrategySchema),
			tenancy.WithTenantNames(),
			tenancy.WithRestoreAttempts(0),
		)
		assert.ErrorIs(t, err, tenancy.ErrConfiguration)
	})
}

func TestFromEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tenants.yml")
	require.NoError(t, os.WriteFile(path, []byte("- acme\n- globex\n"), 0o600))

	cfg, err := tenancy.NewConfig(tenancy.FromEnv(tenancy.EnvConfig{
		Strategy:           tenancy.StrategyDatabaseName,
		DefaultTenant:      "main",
		PersistentSchemas:  []string{"shared"},
		ExcludedOwners:     []string{"audit"},
		Tenants:            []string{"ignored"},
		TenantsFile:        path,
		DatabaseURL:        "postgres://app@db/app",
		DatabaseNameFormat: "app_%s",
		RestoreAttempts:    5,
	}))
	require.NoError(t, err)

	assert.Equal(t, tenancy.StrategyDatabaseName, cfg.Strategy())
	assert.Equal(t, "main", cfg.DefaultTenant())
	assert.Equal(t, []string{"shared"}, cfg.PersistentSchemas())
	assert.True(t, cfg.IsExcluded("audit"))
	assert.Equal(t, "app_%s", cfg.DatabaseNameFormat())
	assert.Equal(t, 5, cfg.RestoreAttempts())

	base, _ := cfg.BaseConfig(tenancy.DefaultOwner)
	assert.Equal(t, "postgres://app@db/app", base.String(tenancy.KeyURL))

	names, err := cfg.TenantNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, names)
}

func TestStore(t *testing.T) {
	t.Parallel()

	s := tenancy.NewStore()

	_, err := s.Config()
	assert.ErrorIs(t, err, tenancy.ErrNotConfigured)
	assert.Panics(t, func() { s.MustConfig() })

	cfg, err := s.Configure(tenancy.WithStrategy(tenancy.StrategySchema), tenancy.WithTenantNames("acme"))
	require.NoError(t, err)

	got, err := s.Config()
	require.NoError(t, err)
	assert.Same(t, cfg, got)

	_, err = s.Configure(tenancy.WithStrategy(tenancy.StrategyShard), tenancy.WithTenantNames("acme"))
	assert.ErrorIs(t, err, tenancy.ErrConfiguration)
	assert.ErrorIs(t, err, tenancy.ErrAlreadyConfigured)
	assert.Equal(t, tenancy.StrategySchema, s.MustConfig().Strategy())

	s.Reset()
	cfg, err = s.Configure(tenancy.WithStrategy(tenancy.StrategyShard), tenancy.WithTenantNames("acme"))
	require.NoError(t, err)
	assert.Equal(t, tenancy.StrategyShard, cfg.Strategy())

	s.Reset()
	_, err = s.Configure(tenancy.WithTenantNames("acme"))
	assert.ErrorIs(t, err, tenancy.ErrNoStrategy)
	_, err = s.Config()
	assert.ErrorIs(t, err, tenancy.ErrNotConfigured)
}
