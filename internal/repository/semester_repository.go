package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// SemesterRepository reads semesters and their curricula.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs a SemesterRepository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

const semesterSelect = `SELECT s.id, s.program_id, s.year_number, s.name, COUNT(st.id) AS enrollment
FROM semesters s LEFT JOIN students st ON st.semester_id = s.id`

// List returns semesters ordered by id. An empty ids slice returns every semester.
func (r *SemesterRepository) List(ctx context.Context, ids []string) ([]models.Semester, error) {
	query := semesterSelect
	var args []interface{}
	if len(ids) > 0 {
		query += " WHERE s.id = ANY($1)"
		args = append(args, pq.Array(ids))
	}
	query += " GROUP BY s.id, s.program_id, s.year_number, s.name ORDER BY s.id ASC"

	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query, args...); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// ListCurricula returns required courses for the given semesters ordered by semester then course.
func (r *SemesterRepository) ListCurricula(ctx context.Context, semesterIDs []string) ([]models.SemesterCourse, error) {
	if len(semesterIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT semester_id, course_id FROM semester_courses WHERE semester_id = ANY($1) ORDER BY semester_id ASC, course_id ASC`
	var rows []models.SemesterCourse
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(semesterIDs)); err != nil {
		return nil, fmt.Errorf("list semester curricula: %w", err)
	}
	return rows, nil
}

// Exists reports whether the semester is known.
func (r *SemesterRepository) Exists(ctx context.Context, id string) (bool, error) {
	return existsByID(ctx, r.db, "semesters", id)
}
