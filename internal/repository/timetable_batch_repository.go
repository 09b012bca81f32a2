package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// TimetableBatchRepository persists the ledger of generation runs.
type TimetableBatchRepository struct {
	db *sqlx.DB
}

// NewTimetableBatchRepository constructs repository.
func NewTimetableBatchRepository(db *sqlx.DB) *TimetableBatchRepository {
	return &TimetableBatchRepository{db: db}
}

func (r *TimetableBatchRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new batch, defaulting to OPEN.
func (r *TimetableBatchRepository) Create(ctx context.Context, exec sqlx.ExtContext, batch *models.TimetableBatch) error {
	if batch == nil {
		return fmt.Errorf("batch payload is nil")
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusOpen
	}
	if len(batch.Meta) == 0 {
		batch.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now

	const query = `
INSERT INTO timetable_batches (id, status, semester_ids, meta, created_at, updated_at)
VALUES (:id, :status, :semester_ids, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, batch); err != nil {
		return fmt.Errorf("insert timetable batch: %w", err)
	}
	return nil
}

// FindOpen returns the batch currently awaiting confirmation, or nil when none is open.
func (r *TimetableBatchRepository) FindOpen(ctx context.Context) (*models.TimetableBatch, error) {
	const query = `SELECT id, status, semester_ids, meta, created_at, updated_at
FROM timetable_batches WHERE status = $1 ORDER BY created_at DESC LIMIT 1`
	var batch models.TimetableBatch
	if err := r.db.GetContext(ctx, &batch, query, models.BatchStatusOpen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open timetable batch: %w", err)
	}
	return &batch, nil
}

// CloseOpen moves every OPEN batch to the given terminal status.
func (r *TimetableBatchRepository) CloseOpen(ctx context.Context, exec sqlx.ExtContext, status models.BatchStatus) (int64, error) {
	const query = `UPDATE timetable_batches SET status = $1, updated_at = $2 WHERE status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, status, time.Now().UTC(), models.BatchStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("close open timetable batches: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("timetable batch rows affected: %w", err)
	}
	return affected, nil
}
