package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	insertTimestampSQL = `INSERT INTO time_entry (time) VALUES (?)`

	// No ORDER BY: read order is unspecified.
	selectTimestampsSQL = `SELECT time FROM time_entry`
)

// TimestampRepository persists timestamps to the time_entry table. Every
// failure it returns is an *Error carrying a SQLSTATE code.
type TimestampRepository struct {
	client *Client
	db     *sql.DB
	insert string
	selAll string
}

// NewTimestampRepository creates a new timestamp repository.
func NewTimestampRepository(client *Client) *TimestampRepository {
	return &TimestampRepository{
		client: client,
		db:     client.DB(),
		insert: client.dialect.rebind(insertTimestampSQL),
		selAll: client.dialect.rebind(selectTimestampsSQL),
	}
}

// InsertOne stores a single timestamp.
func (r *TimestampRepository) InsertOne(ctx context.Context, ts time.Time) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, r.insert, ts); err != nil {
		return translate("insert", err)
	}
	return nil
}

// InsertMany stores timestamps in a single transaction using a prepared
// statement. Either every row is committed or none is.
func (r *TimestampRepository) InsertMany(ctx context.Context, timestamps []time.Time) error {
	if len(timestamps) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("insert batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, r.insert)
	if err != nil {
		return translate("insert batch", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ts := range timestamps {
		if _, err := stmt.ExecContext(ctx, ts); err != nil {
			return translate("insert batch", err)
		}
	}

	return translate("insert batch", tx.Commit())
}

// SelectAll returns every stored timestamp in store order.
func (r *TimestampRepository) SelectAll(ctx context.Context) ([]time.Time, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.selAll)
	if err != nil {
		return nil, translate("select", err)
	}
	defer rows.Close()

	timestamps := []time.Time{}
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, translate("select", err)
		}
		timestamps = append(timestamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("select", err)
	}

	return timestamps, nil
}

// Ping delegates to the client's liveness query.
func (r *TimestampRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func (r *TimestampRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.client.config.QueryTimeout)
}
