package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeacherRepositoryListWithCourses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name FROM teachers ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow("t-1", "Ana").AddRow("t-2", "Budi"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id, course_id FROM teacher_courses ORDER BY teacher_id ASC, course_id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id", "course_id"}).
			AddRow("t-1", "c-1").
			AddRow("t-1", "c-2").
			AddRow("t-9", "c-1"))

	teachers, err := repo.ListWithCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.Equal(t, []string{"c-1", "c-2"}, teachers[0].CourseIDs)
	assert.Empty(t, teachers[1].CourseIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM teachers WHERE id = $1)")).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
