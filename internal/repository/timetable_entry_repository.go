package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable/internal/models"
)

const timetableEntryColumns = "id, semester_id, course_id, teacher_id, classroom_id, day, start_time, end_time, status, batch_id, created_at, updated_at"

// TimetableEntryRepository persists draft and committed timetable entries.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository constructs the repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

func (r *TimetableEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns entries matching the filter. An empty status returns both drafts and committed entries.
func (r *TimetableEntryRepository) List(ctx context.Context, filter models.EntryFilter) ([]models.TimetableEntry, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}

	query := "SELECT " + timetableEntryColumns + " FROM timetable_entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY semester_id ASC, course_id ASC, id ASC"

	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// FindByID loads an entry by id.
func (r *TimetableEntryRepository) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	query := "SELECT " + timetableEntryColumns + " FROM timetable_entries WHERE id = $1"
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountDrafts reports how many draft entries are pending confirmation.
func (r *TimetableEntryRepository) CountDrafts(ctx context.Context, exec sqlx.ExtContext) (int, error) {
	const query = `SELECT COUNT(*) FROM timetable_entries WHERE status = $1`
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, models.EntryStatusDraft); err != nil {
		return 0, fmt.Errorf("count draft timetable entries: %w", err)
	}
	return total, nil
}

// SemestersWithEntries returns the subset of semesterIDs that already own at least one entry.
func (r *TimetableEntryRepository) SemestersWithEntries(ctx context.Context, semesterIDs []string) ([]string, error) {
	if len(semesterIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT semester_id FROM timetable_entries WHERE semester_id = ANY($1) ORDER BY semester_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(semesterIDs)); err != nil {
		return nil, fmt.Errorf("list scheduled semesters: %w", err)
	}
	return ids, nil
}

// Create inserts a single entry.
func (r *TimetableEntryRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	if entry == nil {
		return fmt.Errorf("timetable entry payload is nil")
	}
	prepareEntry(entry, time.Now().UTC())

	const query = `
INSERT INTO timetable_entries (id, semester_id, course_id, teacher_id, classroom_id, day, start_time, end_time, status, batch_id, created_at, updated_at)
VALUES (:id, :semester_id, :course_id, :teacher_id, :classroom_id, :day, :start_time, :end_time, :status, :batch_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert timetable entry: %w", err)
	}
	return nil
}

// BulkInsert stores generated entries one row at a time on exec. Callers pass a transaction so
// the batch lands as a unit.
func (r *TimetableEntryRepository) BulkInsert(ctx context.Context, exec sqlx.ExtContext, entries []models.TimetableEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_entries (id, semester_id, course_id, teacher_id, classroom_id, day, start_time, end_time, status, batch_id, created_at, updated_at)
VALUES (:id, :semester_id, :course_id, :teacher_id, :classroom_id, :day, :start_time, :end_time, :status, :batch_id, :created_at, :updated_at)`

	for i := range entries {
		entry := &entries[i]
		prepareEntry(entry, now)
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert timetable entry %s: %w", entry.ID, err)
		}
	}
	return nil
}

// Update rewrites the mutable columns of an entry.
func (r *TimetableEntryRepository) Update(ctx context.Context, exec sqlx.ExtContext, entry *models.TimetableEntry) error {
	if entry == nil {
		return fmt.Errorf("timetable entry payload is nil")
	}
	entry.UpdatedAt = time.Now().UTC()

	const query = `
UPDATE timetable_entries
SET semester_id = :semester_id, course_id = :course_id, teacher_id = :teacher_id, classroom_id = :classroom_id,
    day = :day, start_time = :start_time, end_time = :end_time, updated_at = :updated_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return fmt.Errorf("update timetable entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable entry rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an entry.
func (r *TimetableEntryRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM timetable_entries WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete timetable entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable entry rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PromoteDrafts marks every draft as committed and returns how many rows changed.
func (r *TimetableEntryRepository) PromoteDrafts(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	const query = `UPDATE timetable_entries SET status = $1, updated_at = $2 WHERE status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, models.EntryStatusCommitted, time.Now().UTC(), models.EntryStatusDraft)
	if err != nil {
		return 0, fmt.Errorf("promote draft timetable entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("promote rows affected: %w", err)
	}
	return affected, nil
}

// DeleteDrafts removes every draft and returns how many rows were deleted.
func (r *TimetableEntryRepository) DeleteDrafts(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	const query = `DELETE FROM timetable_entries WHERE status = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, models.EntryStatusDraft)
	if err != nil {
		return 0, fmt.Errorf("discard draft timetable entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("discard rows affected: %w", err)
	}
	return affected, nil
}

func prepareEntry(entry *models.TimetableEntry, now time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.EntryStatusDraft
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
}
