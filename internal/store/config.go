// Package store provides the relational persistence layer for buffered
// timestamps, backed by PostgreSQL (lib/pq) or SQLite (modernc.org/sqlite).
package store

import (
	"fmt"
	"time"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings.
type Config struct {
	// Driver selects the database backend (postgres, sqlite)
	Driver string `env:"DRIVER" envDefault:"postgres"`

	// Host is the PostgreSQL host
	Host string `env:"HOST" envDefault:"localhost"`

	// Port is the PostgreSQL port
	Port int `env:"PORT" envDefault:"5432"`

	// User is the database user
	User string `env:"USER" envDefault:"timer"`

	// Password is the database password
	Password string `env:"PASSWORD" envDefault:"timer"`

	// Name is the database name
	Name string `env:"NAME" envDefault:"timer"`

	// SSLMode is the SSL mode (disable, require, verify-ca, verify-full)
	SSLMode string `env:"SSL_MODE" envDefault:"disable"`

	// Path is the SQLite database file, used when Driver is sqlite
	Path string `env:"PATH" envDefault:"timer.db"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"10"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `env:"MAX_IDLE_CONNS" envDefault:"5"`

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`

	// QueryTimeout bounds every statement issued by the repository
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"15s"`

	// Migrate applies schema migrations on startup
	Migrate bool `env:"MIGRATE" envDefault:"true"`
}

// Validate checks the database configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Driver)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", c.QueryTimeout)
	}
	return nil
}

// dsn builds the driver-specific data source name.
func (c Config) dsn() string {
	if c.Driver == DriverSQLite {
		return c.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
