// Package config loads application configuration from environment variables
// into tagged Go structs.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11`:
//
//   - The default `.env` file in the working directory is loaded once per
//     process if present.
//   - Additional `.env` files can be loaded per call with WithEnvFiles.
//   - WithPrefix namespaces every tag, so one struct type can describe several
//     connection owners (PG_CONN_URL, ANALYTICS_PG_CONN_URL, ...).
//
// # Usage
//
//	import "github.com/dmitrymomot/tenantdb/pkg/config"
//
//	var tenancyEnv tenancy.EnvConfig
//	if err := config.Load(&tenancyEnv); err != nil {
//		log.Fatalf("parsing env: %v", err)
//	}
//
//	var analytics pg.Config
//	config.MustLoad(&analytics, config.WithPrefix("ANALYTICS_"))
//
// # Error Handling
//
// The package defines sentinel errors that can be compared with `errors.Is`:
//
//   - `ErrParsingConfig`  – failed to parse env vars into struct.
//   - `ErrLoadingEnvFile` – an explicitly requested .env file is unreadable.
//   - `ErrNilPointer`     – nil pointer passed to `Load`/`MustLoad`.
package config
