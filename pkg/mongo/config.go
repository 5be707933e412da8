package mongo

import "time"

// Config holds the settings of the shared deployment client. Tenants whose
// mapped config names another url get a client built from the same settings.
type Config struct {
	// Shared deployment. Tenant databases live here unless mapped elsewhere.
	ConnectionURL string `env:"MONGODB_URL,required"`
	// Pattern mapping a tenant to its database. WithDatabaseNameFormat overrides it.
	DatabaseNameFormat string `env:"MONGODB_DATABASE_NAME_FORMAT" envDefault:"%s"`

	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"` // per client, shared by every tenant on it
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryWrites     bool          `env:"MONGODB_RETRY_WRITES" envDefault:"true"`
	RetryReads      bool          `env:"MONGODB_RETRY_READS" envDefault:"true"`

	// Connect attempts made by New and for every tenant-owned client.
	RetryAttempts int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"2s"`
}
