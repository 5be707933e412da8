package mysql

import "time"

// Config holds the admin connection and the limits applied to every tenant
// pool. ConnectionString is a go-sql-driver DSN, e.g.
// "app:secret@tcp(db.internal:3306)/app?parseTime=true".
type Config struct {
	ConnectionString string        `env:"MYSQL_DSN,required"`                        // ConnectionString is the admin DSN, also the default for tenant pools.
	MaxOpenConns     int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"10"`      // MaxOpenConns is the maximum number of open connections per pool.
	MaxIdleConns     int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"2"`       // MaxIdleConns is the maximum number of idle connections per pool.
	ConnMaxLifetime  time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"30m"`  // ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxIdleTime  time.Duration `env:"MYSQL_CONN_MAX_IDLE_TIME" envDefault:"10m"` // ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	RetryAttempts    int           `env:"MYSQL_RETRY_ATTEMPTS" envDefault:"3"`       // RetryAttempts is the number of attempts to open a pool.
	RetryInterval    time.Duration `env:"MYSQL_RETRY_INTERVAL" envDefault:"1s"`      // RetryInterval is the base interval between attempts.
}
