package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	_ "github.com/lib/pq"    // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver, pure Go
)

// dialect adapts statement text to the driver's placeholder syntax.
type dialect struct {
	name string
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Client owns the connection pool.
type Client struct {
	db      *sql.DB
	dialect dialect
	config  Config
	logger  *slog.Logger

	migrated atomic.Bool
	ready    atomic.Bool
}

// NewClient opens the pool and verifies it with Ping. The store does not
// need to be reachable at startup: a connection-class failure is logged and
// left to the availability monitor.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		db:      db,
		dialect: dialect{name: cfg.Driver},
		config:  cfg,
		logger:  logger,
	}

	if err := c.Ping(ctx); err != nil {
		if !IsConnectionError(err) {
			_ = db.Close()
			return nil, err
		}
		logger.Warn("database not reachable at startup", "error", err)
		return c, nil
	}

	logger.Info("connected to database",
		"driver", cfg.Driver,
		"host", cfg.Host,
		"database", cfg.Name,
	)

	return c, nil
}

// Ping issues a trivial liveness query bounded by the query timeout. The
// first successful ping also applies pending migrations when enabled, so a
// store that was down at startup gets its schema on recovery.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.QueryTimeout)
	defer cancel()

	var one int
	if err := c.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return translate("ping", err)
	}

	if c.config.Migrate && !c.migrated.Load() {
		if err := c.Migrate(ctx); err != nil {
			if IsConnectionError(err) {
				return err
			}
			// The store answered but the schema could not be applied.
			c.logger.Error("schema migration failed", "error", err)
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
		c.migrated.Store(true)
	}
	c.ready.Store(true)
	return nil
}

// Ready reports whether a ping has succeeded since the client was created.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// DB returns the underlying pool.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.db.Close()
}
