package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// CourseRepository checks course references.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Exists reports whether the course is known.
func (r *CourseRepository) Exists(ctx context.Context, id string) (bool, error) {
	return existsByID(ctx, r.db, "courses", id)
}
