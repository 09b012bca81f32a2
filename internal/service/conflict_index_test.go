package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/models"
)

func booking(id, semester, course, teacher, room string, day models.Weekday, start string) models.TimetableEntry {
	end := "12:00"
	if start == "14:00" {
		end = "17:00"
	}
	return models.TimetableEntry{
		ID: id, SemesterID: semester, CourseID: course, TeacherID: teacher, ClassroomID: room,
		Day: day, StartTime: start, EndTime: end, Status: models.EntryStatusCommitted,
	}
}

func TestConflictIndexReportsEveryDimension(t *testing.T) {
	idx := NewConflictIndex()
	require.Nil(t, idx.Register(booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")))

	conflict := idx.Check(booking("e-2", "sem-a", "c-2", "t-1", "r-1", models.Monday, "09:00"), "")
	require.NotNil(t, conflict)
	assert.Equal(t, []models.ConflictDimension{models.DimensionClassroom, models.DimensionSemester, models.DimensionTeacher}, conflict.Dimensions())
	for _, c := range conflict.Conflicts {
		assert.Equal(t, "e-1", c.BlockingEntryID)
	}
}

func TestConflictIndexClassroomOnly(t *testing.T) {
	idx := NewConflictIndex()
	require.Nil(t, idx.Register(booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")))

	conflict := idx.Check(booking("e-2", "sem-b", "c-9", "t-2", "r-1", models.Monday, "09:00"), "")
	require.NotNil(t, conflict)
	assert.Equal(t, []models.ConflictDimension{models.DimensionClassroom}, conflict.Dimensions())
	assert.Contains(t, conflict.Error(), "classroom held by e-1")
}

func TestConflictIndexDifferentSlotIsFree(t *testing.T) {
	idx := NewConflictIndex()
	require.Nil(t, idx.Register(booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")))

	assert.Nil(t, idx.Check(booking("e-2", "sem-a", "c-2", "t-1", "r-1", models.Monday, "14:00"), ""))
	assert.Nil(t, idx.Check(booking("e-3", "sem-a", "c-2", "t-1", "r-1", models.Tuesday, "09:00"), ""))
}

func TestConflictIndexExcludesSelf(t *testing.T) {
	idx := NewConflictIndex()
	original := booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")
	require.Nil(t, idx.Register(original))

	updated := original
	updated.CourseID = "c-2"
	assert.Nil(t, idx.Check(updated, "e-1"))
	require.Nil(t, idx.Register(updated))

	held, ok := idx.Get("e-1")
	require.True(t, ok)
	assert.Equal(t, "c-2", held.CourseID)
	assert.Equal(t, 1, idx.Len())
}

func TestConflictIndexRegisterMovesPriorVersion(t *testing.T) {
	idx := NewConflictIndex()
	original := booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")
	require.Nil(t, idx.Register(original))

	moved := original
	moved.Day = models.Friday
	require.Nil(t, idx.Register(moved))

	assert.Nil(t, idx.Check(booking("e-2", "sem-a", "c-2", "t-1", "r-1", models.Monday, "09:00"), ""))
	assert.NotNil(t, idx.Check(booking("e-3", "sem-b", "c-3", "t-9", "r-1", models.Friday, "09:00"), ""))
}

func TestConflictIndexRegisterRejectsCollision(t *testing.T) {
	idx := NewConflictIndex()
	require.Nil(t, idx.Register(booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")))

	conflict := idx.Register(booking("e-2", "sem-b", "c-2", "t-1", "r-2", models.Monday, "09:00"))
	require.NotNil(t, conflict)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Get("e-2")
	assert.False(t, ok)
}

func TestConflictIndexUnregisterFreesAllDimensions(t *testing.T) {
	idx := NewConflictIndex()
	entry := booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")
	require.Nil(t, idx.Register(entry))

	assert.True(t, idx.Unregister("e-1"))
	assert.False(t, idx.Unregister("e-1"))
	assert.Nil(t, idx.Check(booking("e-2", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00"), ""))
	assert.Zero(t, idx.Len())
}

func TestConflictIndexRebuildReportsCollisions(t *testing.T) {
	idx := NewConflictIndex()
	require.Nil(t, idx.Register(booking("stale", "sem-z", "c-z", "t-z", "r-z", models.Friday, "14:00")))

	collisions := idx.Rebuild([]models.TimetableEntry{
		booking("e-2", "sem-b", "c-2", "t-1", "r-2", models.Monday, "09:00"),
		booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00"),
	})

	require.Len(t, collisions, 1)
	assert.Equal(t, "e-2", collisions[0].EntryID)
	assert.Equal(t, models.DimensionTeacher, collisions[0].Conflicts[0].Dimension)
	_, stale := idx.Get("stale")
	assert.False(t, stale)
	assert.Equal(t, []string{"e-1"}, entryIDs(idx.Entries()))
}

func TestConflictIndexMatches(t *testing.T) {
	idx := NewConflictIndex()
	persisted := []models.TimetableEntry{
		booking("e-1", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00"),
		booking("e-2", "sem-a", "c-2", "t-2", "r-1", models.Monday, "14:00"),
	}
	require.Empty(t, idx.Rebuild(persisted))
	assert.True(t, idx.Matches(persisted))

	drifted := append([]models.TimetableEntry(nil), persisted...)
	drifted[1].ClassroomID = "r-2"
	assert.False(t, idx.Matches(drifted))
	assert.False(t, idx.Matches(persisted[:1]))
}

// Availability holds exactly when registering would keep every dimension unique.
func TestConflictIndexCheckAgreesWithRegister(t *testing.T) {
	grid := models.DefaultSlotGrid()
	idx := NewConflictIndex()
	teachers := []string{"t-1", "t-2"}
	rooms := []string{"r-1", "r-2"}
	semesters := []string{"sem-a", "sem-b", "sem-c"}

	n := 0
	for _, slot := range grid.Slots()[:3] {
		for _, sem := range semesters {
			for _, teacher := range teachers {
				for _, room := range rooms {
					n++
					candidate := models.TimetableEntry{
						ID:         fmt.Sprintf("e-%d", n),
						SemesterID: sem, TeacherID: teacher, ClassroomID: room,
						Day: slot.Day, StartTime: slot.StartTime, EndTime: slot.EndTime,
					}
					free := idx.Check(candidate, "") == nil
					registered := idx.Register(candidate) == nil
					assert.Equal(t, free, registered)
				}
			}
		}
	}
	assertUniqueBookings(t, idx.Entries())
}

func entryIDs(entries []models.TimetableEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func assertUniqueBookings(t *testing.T, entries []models.TimetableEntry) {
	t.Helper()
	seen := map[string]string{}
	for _, e := range entries {
		for _, key := range []string{
			"classroom|" + e.ClassroomID + "|" + string(e.Day) + "|" + e.StartTime,
			"semester|" + e.SemesterID + "|" + string(e.Day) + "|" + e.StartTime,
			"teacher|" + e.TeacherID + "|" + string(e.Day) + "|" + e.StartTime,
		} {
			if prior, ok := seen[key]; ok {
				t.Fatalf("%s booked by both %s and %s", key, prior, e.ID)
			}
			seen[key] = e.ID
		}
	}
}

func TestConflictIndexRebuildKeepsCommittedOverDraft(t *testing.T) {
	idx := NewConflictIndex()
	draft := booking("a-draft", "sem-a", "c-1", "t-1", "r-1", models.Monday, "09:00")
	draft.Status = models.EntryStatusDraft
	committed := booking("z-committed", "sem-x", "c-9", "t-9", "r-1", models.Monday, "09:00")

	collisions := idx.Rebuild([]models.TimetableEntry{draft, committed})

	require.Len(t, collisions, 1)
	assert.Equal(t, "a-draft", collisions[0].EntryID)
	_, ok := idx.Get("z-committed")
	assert.True(t, ok)
}
