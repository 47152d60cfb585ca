package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
)

// EntryRepository handles PostgreSQL operations for glucose entries
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// InsertBatch inserts multiple entries in a single transaction. Backfills
// insert tens of thousands of rows, so one round trip per row is not an
// option.
func (r *EntryRepository) InsertBatch(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const sql = `
		INSERT INTO glucose_entries (
			id, device, date_ms, time, sgv, direction, trend, delta,
			filtered, unfiltered, rssi, noise, type, is_demo
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(sql,
			e.ID, e.Device, e.Date, e.Time().UTC(), e.SGV, e.Direction, e.Trend,
			e.Delta, e.Filtered, e.Unfiltered, e.RSSI, e.Noise, e.Type, e.IsDemo,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByTimeRange retrieves entries within [from, to], newest first.
func (r *EntryRepository) ListByTimeRange(ctx context.Context, from, to time.Time, limit int) ([]domain.Entry, error) {
	if !to.After(from) {
		return nil, domain.ErrInvalidTimeRange
	}
	if limit <= 0 {
		limit = 288
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, device, date_ms, sgv, direction, trend, delta,
		       filtered, unfiltered, rssi, noise, type, is_demo
		FROM glucose_entries
		WHERE time >= $1 AND time <= $2
		ORDER BY time DESC
		LIMIT $3
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		err := rows.Scan(
			&e.ID, &e.Device, &e.Date, &e.SGV, &e.Direction, &e.Trend, &e.Delta,
			&e.Filtered, &e.Unfiltered, &e.RSSI, &e.Noise, &e.Type, &e.IsDemo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.DateString = e.Time().Format(time.RFC3339)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// Latest retrieves the most recent entry.
func (r *EntryRepository) Latest(ctx context.Context) (*domain.Entry, error) {
	var e domain.Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, device, date_ms, sgv, direction, trend, delta,
		       filtered, unfiltered, rssi, noise, type, is_demo
		FROM glucose_entries
		ORDER BY time DESC
		LIMIT 1
	`).Scan(
		&e.ID, &e.Device, &e.Date, &e.SGV, &e.Direction, &e.Trend, &e.Delta,
		&e.Filtered, &e.Unfiltered, &e.RSSI, &e.Noise, &e.Type, &e.IsDemo,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest entry: %w", err)
	}

	e.DateString = e.Time().Format(time.RFC3339)
	return &e, nil
}

// CountDemo returns the number of generator-tagged entries.
func (r *EntryRepository) CountDemo(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM glucose_entries WHERE is_demo`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count demo entries: %w", err)
	}
	return count, nil
}

// DeleteDemo bulk-deletes generator-tagged entries only; user-entered data is
// never touched.
func (r *EntryRepository) DeleteDemo(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM glucose_entries WHERE is_demo`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete demo entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
