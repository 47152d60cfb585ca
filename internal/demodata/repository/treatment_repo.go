package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
)

// TreatmentRepository handles PostgreSQL operations for treatment records
type TreatmentRepository struct {
	pool *pgxpool.Pool
}

// NewTreatmentRepository creates a new TreatmentRepository
func NewTreatmentRepository(pool *pgxpool.Pool) *TreatmentRepository {
	return &TreatmentRepository{pool: pool}
}

// InsertBatch inserts multiple treatments in a single transaction.
func (r *TreatmentRepository) InsertBatch(ctx context.Context, treatments []domain.Treatment) error {
	if len(treatments) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const sql = `
		INSERT INTO treatments (
			id, event_type, date_ms, time, carbs, insulin, rate, duration,
			entered_by, is_demo
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, t := range treatments {
		batch.Queue(sql,
			t.ID, t.EventType, t.Date, t.Time().UTC(), t.Carbs, t.Insulin,
			t.Rate, t.Duration, t.EnteredBy, t.IsDemo,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert treatments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByTimeRange retrieves treatments within [from, to], optionally filtered
// by event type, newest first.
func (r *TreatmentRepository) ListByTimeRange(ctx context.Context, from, to time.Time, eventType string) ([]domain.Treatment, error) {
	if !to.After(from) {
		return nil, domain.ErrInvalidTimeRange
	}

	query := `
		SELECT id, event_type, date_ms, carbs, insulin, rate, duration,
		       entered_by, is_demo
		FROM treatments
		WHERE time >= $1 AND time <= $2
	`
	args := []interface{}{from.UTC(), to.UTC()}

	if eventType != "" {
		query += " AND event_type = $3"
		args = append(args, eventType)
	}
	query += " ORDER BY time DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query treatments: %w", err)
	}
	defer rows.Close()

	var treatments []domain.Treatment
	for rows.Next() {
		var t domain.Treatment
		err := rows.Scan(
			&t.ID, &t.EventType, &t.Date, &t.Carbs, &t.Insulin, &t.Rate,
			&t.Duration, &t.EnteredBy, &t.IsDemo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan treatment: %w", err)
		}
		t.CreatedAt = t.Time().Format(time.RFC3339)
		treatments = append(treatments, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating treatments: %w", err)
	}

	return treatments, nil
}

// DeleteDemo bulk-deletes generator-tagged treatments only.
func (r *TreatmentRepository) DeleteDemo(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM treatments WHERE is_demo`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete demo treatments: %w", err)
	}
	return tag.RowsAffected(), nil
}
