package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// TeacherRepository reads teachers and their course eligibility.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// ListWithCourses returns teachers ordered by id with CourseIDs populated in ascending order.
func (r *TeacherRepository) ListWithCourses(ctx context.Context) ([]models.Teacher, error) {
	const teacherQuery = `SELECT id, full_name FROM teachers ORDER BY id ASC`
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, teacherQuery); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	if len(teachers) == 0 {
		return teachers, nil
	}

	const eligibilityQuery = `SELECT teacher_id, course_id FROM teacher_courses ORDER BY teacher_id ASC, course_id ASC`
	var links []models.TeacherCourse
	if err := r.db.SelectContext(ctx, &links, eligibilityQuery); err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}

	byID := make(map[string]int, len(teachers))
	for i := range teachers {
		byID[teachers[i].ID] = i
		teachers[i].CourseIDs = []string{}
	}
	for _, link := range links {
		idx, ok := byID[link.TeacherID]
		if !ok {
			continue
		}
		teachers[idx].CourseIDs = append(teachers[idx].CourseIDs, link.CourseID)
	}
	return teachers, nil
}

// Exists reports whether the teacher is known.
func (r *TeacherRepository) Exists(ctx context.Context, id string) (bool, error) {
	return existsByID(ctx, r.db, "teachers", id)
}
