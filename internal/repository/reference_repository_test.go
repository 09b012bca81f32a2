package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemesterRepositoryListScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN students st ON st.semester_id = s.id WHERE s.id = ANY($1) GROUP BY")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "program_id", "year_number", "name", "enrollment"}).
			AddRow("sem-a", "prog-1", 1, "Semester 1", 28))

	semesters, err := repo.List(context.Background(), []string{"sem-a"})
	require.NoError(t, err)
	require.Len(t, semesters, 1)
	assert.Equal(t, 28, semesters[0].Enrollment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryListAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN students st ON st.semester_id = s.id GROUP BY s.id, s.program_id, s.year_number, s.name ORDER BY s.id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "program_id", "year_number", "name", "enrollment"}))

	semesters, err := repo.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, semesters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSemesterRepositoryListCurricula(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSemesterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT semester_id, course_id FROM semester_courses WHERE semester_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"semester_id", "course_id"}).AddRow("sem-a", "c-1").AddRow("sem-a", "c-2"))

	rows, err := repo.ListCurricula(context.Background(), []string{"sem-a"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	empty, err := repo.ListCurricula(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestClassroomRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, capacity FROM classrooms ORDER BY id ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity"}).AddRow("r-1", "Lab", 30).AddRow("r-2", "Hall", 20))

	rooms, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, 20, rooms[1].Capacity)
}

func TestCourseRepositoryExistsMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)")).
		WithArgs("c-404").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.Exists(context.Background(), "c-404")
	require.NoError(t, err)
	assert.False(t, ok)
}
