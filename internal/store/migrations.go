package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration represents a versioned schema change.
type migration struct {
	version int
	up      string
}

// migrations is the ordered list of schema migrations. The statements are
// portable between PostgreSQL and SQLite. New migrations MUST be appended.
var migrations = []migration{
	{
		version: 1,
		up:      `CREATE TABLE IF NOT EXISTS time_entry (time TIMESTAMP NOT NULL)`,
	},
}

// Migrate applies all pending migrations, recording progress in
// schema_version.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", translate("migrate", err))
	}

	current, err := c.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := c.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		c.logger.Info("applied migration", "version", m.version)
	}

	return nil
}

func (c *Client) schemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("get schema version: %w", translate("migrate", err))
	}
	return int(version.Int64), nil
}

func (c *Client) apply(ctx context.Context, m migration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("migrate", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return translate("migrate", err)
	}
	if _, err := tx.ExecContext(ctx, c.dialect.rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
		return translate("migrate", err)
	}

	return translate("migrate", tx.Commit())
}
