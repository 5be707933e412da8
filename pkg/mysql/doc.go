// Package mysql is the MySQL adapter of the tenancy pool manager: one
// database per tenant, served through database/sql and go-sql-driver/mysql.
//
// Tenant DDL (CREATE DATABASE, DROP DATABASE) runs on an admin handle with
// backtick-quoted identifiers. Tenant handles are opened from the resolved
// descriptor with mysql.NewConnector, so the DSN is never formatted by hand.
//
// # Usage
//
//	admin, err := mysql.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer admin.Close()
//
//	mgr, err := tenancy.New[*sql.DB](tcfg, mysql.NewAdapter(admin, cfg,
//		mysql.WithDatabaseNameFormat(tcfg.DatabaseNameFormat()),
//	))
//
// # Error Handling
//
// Server errors are classified by number: 1007 becomes
// tenancy.ErrTenantAlreadyExists, 1008 and 1049 become
// tenancy.ErrTenantNotFound.
package mysql
