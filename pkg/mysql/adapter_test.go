package mysql_test

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	drv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantdb/pkg/mysql"
	"github.com/dmitrymomot/tenantdb/pkg/tenancy"
)

const adminDSN = "app:secret@tcp(db.internal:3306)/app?parseTime=true"

var _ tenancy.Adapter[*sql.DB] = (*mysql.Adapter)(nil)

// fixture wires a manager to an admin mock and hands out one mock per
// opened tenant handle.
type fixture struct {
	mgr   *tenancy.Manager[*sql.DB]
	admin sqlmock.Sqlmock

	mu     sync.Mutex
	opened []string
	pools  map[string]sqlmock.Sqlmock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	admin, adminMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	f := &fixture{admin: adminMock, pools: make(map[string]sqlmock.Sqlmock)}
	open := func(cfg *drv.Config) (*sql.DB, error) {
		db, mock, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.opened = append(f.opened, cfg.DBName)
		f.pools[cfg.DBName] = mock
		f.mu.Unlock()
		return db, nil
	}

	tcfg, err := tenancy.NewConfig(
		tenancy.WithStrategy(tenancy.StrategyDatabaseName),
		tenancy.WithTenantNames("acme", "globex"),
		tenancy.WithDatabaseNameFormat("app_%s"),
	)
	require.NoError(t, err)

	adapter := mysql.NewAdapter(admin, mysql.Config{ConnectionString: adminDSN, RetryAttempts: 1},
		mysql.WithDatabaseNameFormat(tcfg.DatabaseNameFormat()),
		mysql.WithOpenFunc(open),
	)
	f.mgr, err = tenancy.New[*sql.DB](tcfg, adapter)
	require.NoError(t, err)
	return f
}

func (f *fixture) expectExists(db string) {
	f.admin.ExpectQuery(regexp.QuoteMeta("SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA")).
		WithArgs(db).
		WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}).AddRow(db))
}

func (f *fixture) expectMissing(db string) {
	f.admin.ExpectQuery(regexp.QuoteMeta("SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA")).
		WithArgs(db).
		WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME"}))
}

func TestAdapter_CreateDrop(t *testing.T) {
	t.Parallel()

	t.Run("create quotes identifier", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.admin.ExpectExec(regexp.QuoteMeta("CREATE DATABASE `app_we``ird`")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.mgr.Create(context.Background(), "we`ird"))
		assert.NoError(t, f.admin.ExpectationsWereMet())
	})

	t.Run("create existing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.admin.ExpectExec(regexp.QuoteMeta("CREATE DATABASE `app_acme`")).
			WillReturnError(&drv.MySQLError{Number: 1007, Message: "Can't create database 'app_acme'; database exists"})

		err := f.mgr.Create(context.Background(), "acme")
		assert.ErrorIs(t, err, tenancy.ErrTenantAlreadyExists)
		assert.True(t, mysql.IsDatabaseExistsError(err))
	})

	t.Run("drop missing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.admin.ExpectExec(regexp.QuoteMeta("DROP DATABASE `app_ghost`")).
			WillReturnError(&drv.MySQLError{Number: 1008, Message: "Can't drop database 'app_ghost'; database doesn't exist"})

		err := f.mgr.Drop(context.Background(), "ghost")
		assert.ErrorIs(t, err, tenancy.ErrTenantNotFound)
	})

	t.Run("empty tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		err := f.mgr.Create(context.Background(), "")
		assert.ErrorIs(t, err, tenancy.ErrConfiguration)
	})
}

func TestAdapter_SwitchAndMarker(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := f.mgr.NewContext(context.Background())

	f.expectExists("app_acme")
	require.NoError(t, f.mgr.Switch(ctx, "acme"))
	assert.Equal(t, "acme", f.mgr.Current(ctx))
	assert.Equal(t, []string{"app_acme"}, f.opened)

	f.pools["app_acme"].ExpectQuery(regexp.QuoteMeta("SELECT DATABASE()")).
		WillReturnRows(sqlmock.NewRows([]string{"DATABASE()"}).AddRow("app_acme"))
	marker, err := f.mgr.Marker(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app_acme", marker)

	// Cached: switching back to acme opens nothing new.
	require.NoError(t, f.mgr.Switch(ctx, "acme"))
	assert.Len(t, f.opened, 1)

	f.expectMissing("app_ghost")
	err = f.mgr.Switch(ctx, "ghost")
	assert.ErrorIs(t, err, tenancy.ErrTenantNotFound)
	assert.Equal(t, "acme", f.mgr.Current(ctx))

	assert.NoError(t, mysql.RegistryHealthcheck(f.mgr.Registry())(ctx))
	assert.NoError(t, f.admin.ExpectationsWereMet())
}

func TestAdapter_DropClosesPools(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := f.mgr.NewContext(context.Background())

	f.expectExists("app_globex")
	require.NoError(t, f.mgr.Switch(ctx, "globex"))
	require.NoError(t, f.mgr.Reset(ctx))

	f.pools["app_globex"].ExpectClose()
	f.admin.ExpectExec(regexp.QuoteMeta("DROP DATABASE `app_globex`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, f.mgr.Drop(ctx, "globex"))
	assert.Zero(t, f.mgr.Registry().Len())
	assert.NoError(t, f.pools["app_globex"].ExpectationsWereMet())
	assert.NoError(t, f.admin.ExpectationsWereMet())
}

func TestDSN(t *testing.T) {
	t.Parallel()

	resolve := func(t *testing.T, strategy tenancy.Strategy, req tenancy.Request) tenancy.Descriptor {
		t.Helper()
		cfg, err := tenancy.NewConfig(
			tenancy.WithStrategy(strategy),
			tenancy.WithTenantNames("acme"),
			tenancy.WithDatabaseNameFormat("app_%s"),
		)
		require.NoError(t, err)
		d, err := tenancy.NewResolver(cfg).Resolve(req)
		require.NoError(t, err)
		return d
	}

	t.Run("database name from strategy", func(t *testing.T) {
		t.Parallel()
		d := resolve(t, tenancy.StrategyDatabaseName, tenancy.Request{Tenant: "acme"})
		dsn, err := mysql.DSN(mysql.Config{ConnectionString: adminDSN}, d)
		require.NoError(t, err)
		assert.Equal(t, "app_acme", dsn.DBName)
		assert.Equal(t, "db.internal:3306", dsn.Addr)
		assert.Equal(t, "app", dsn.User)
		assert.True(t, dsn.ParseTime)
	})

	t.Run("config map overrides address", func(t *testing.T) {
		t.Parallel()
		d := resolve(t, tenancy.StrategyConfigMap, tenancy.Request{
			Tenant: "acme",
			TenantConfig: tenancy.ConnConfig{
				tenancy.KeyHost:     "eu.db.internal",
				tenancy.KeyPort:     3307,
				tenancy.KeyUser:     "acme",
				tenancy.KeyPassword: "pw",
				tenancy.KeyDatabase: "acme",
			},
		})
		dsn, err := mysql.DSN(mysql.Config{ConnectionString: adminDSN}, d)
		require.NoError(t, err)
		assert.Equal(t, "eu.db.internal:3307", dsn.Addr)
		assert.Equal(t, "acme", dsn.User)
		assert.Equal(t, "pw", dsn.Passwd)
		assert.Equal(t, "acme", dsn.DBName)
	})

	t.Run("admin database is not inherited", func(t *testing.T) {
		t.Parallel()
		d := resolve(t, tenancy.StrategyShard, tenancy.Request{Tenant: "acme"})
		dsn, err := mysql.DSN(mysql.Config{ConnectionString: adminDSN}, d)
		require.NoError(t, err)
		assert.Empty(t, dsn.DBName)
	})

	t.Run("invalid dsn", func(t *testing.T) {
		t.Parallel()
		d := resolve(t, tenancy.StrategyDatabaseName, tenancy.Request{Tenant: "acme"})
		_, err := mysql.DSN(mysql.Config{ConnectionString: "not a dsn"}, d)
		assert.ErrorIs(t, err, mysql.ErrFailedToParseDSN)
	})
}
