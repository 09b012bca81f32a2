package service

import (
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable/internal/models"
)

// entryNamespace seeds deterministic entry ids so identical inputs yield identical drafts.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:sma-timetable:timetable-entry"))

// DraftEntryID derives the id of the draft placing course into semester.
func DraftEntryID(semesterID, courseID string) string {
	return uuid.NewSHA1(entryNamespace, []byte(semesterID+"|"+courseID)).String()
}

// AllocationInput is the reference data snapshot the engine schedules from.
type AllocationInput struct {
	Semesters  []models.Semester
	Curricula  map[string][]string
	Teachers   []models.Teacher
	Classrooms []models.Classroom
}

// AllocationResult lists placed drafts in placement order and the courses left unplaced.
type AllocationResult struct {
	Placed   []models.TimetableEntry
	Unplaced []models.UnplacedCourse
}

// AllocationEngine assigns one session per (semester, course) to the first free
// (slot, teacher, classroom) combination in a fixed iteration order.
type AllocationEngine struct {
	grid *models.SlotGrid
}

// NewAllocationEngine builds an engine over the slot grid.
func NewAllocationEngine(grid *models.SlotGrid) *AllocationEngine {
	if grid == nil {
		grid = models.DefaultSlotGrid()
	}
	return &AllocationEngine{grid: grid}
}

// Allocate places courses into index, registering each accepted draft before moving on.
// The caller must hold the index exclusively for the whole call.
func (e *AllocationEngine) Allocate(index *ConflictIndex, input AllocationInput, batchID string) AllocationResult {
	semesters := make([]models.Semester, len(input.Semesters))
	copy(semesters, input.Semesters)
	sort.Slice(semesters, func(i, j int) bool { return semesters[i].ID < semesters[j].ID })

	teachersByCourse := eligibleTeachers(input.Teachers)
	classrooms := make([]models.Classroom, len(input.Classrooms))
	copy(classrooms, input.Classrooms)
	sort.Slice(classrooms, func(i, j int) bool { return classrooms[i].ID < classrooms[j].ID })

	slots := e.grid.Slots()
	var batchRef *string
	if batchID != "" {
		batchRef = &batchID
	}

	result := AllocationResult{Placed: []models.TimetableEntry{}, Unplaced: []models.UnplacedCourse{}}
	for _, semester := range semesters {
		courses := uniqueSorted(input.Curricula[semester.ID])
		rooms := roomsFitting(classrooms, semester.Enrollment)

		for _, courseID := range courses {
			teachers := teachersByCourse[courseID]
			switch {
			case len(teachers) == 0:
				result.Unplaced = append(result.Unplaced, models.UnplacedCourse{SemesterID: semester.ID, CourseID: courseID, Reason: models.UnplacedNoEligibleTeacher})
				continue
			case len(rooms) == 0:
				result.Unplaced = append(result.Unplaced, models.UnplacedCourse{SemesterID: semester.ID, CourseID: courseID, Reason: models.UnplacedNoClassroom})
				continue
			}

			entry, ok := e.place(index, semester.ID, courseID, slots, teachers, rooms)
			if !ok {
				result.Unplaced = append(result.Unplaced, models.UnplacedCourse{SemesterID: semester.ID, CourseID: courseID, Reason: models.UnplacedNoFreeSlot})
				continue
			}
			entry.BatchID = batchRef
			result.Placed = append(result.Placed, entry)
		}
	}
	return result
}

func (e *AllocationEngine) place(index *ConflictIndex, semesterID, courseID string, slots []models.SlotDefinition, teachers []string, rooms []models.Classroom) (models.TimetableEntry, bool) {
	candidate := models.TimetableEntry{
		ID:         DraftEntryID(semesterID, courseID),
		SemesterID: semesterID,
		CourseID:   courseID,
		Status:     models.EntryStatusDraft,
	}
	for _, slot := range slots {
		candidate.Day = slot.Day
		candidate.StartTime = slot.StartTime
		candidate.EndTime = slot.EndTime
		for _, teacherID := range teachers {
			candidate.TeacherID = teacherID
			for _, room := range rooms {
				candidate.ClassroomID = room.ID
				if index.Check(candidate, "") != nil {
					continue
				}
				if index.Register(candidate) != nil {
					continue
				}
				return candidate, true
			}
		}
	}
	return models.TimetableEntry{}, false
}

func eligibleTeachers(teachers []models.Teacher) map[string][]string {
	out := make(map[string][]string)
	for _, teacher := range teachers {
		for _, courseID := range teacher.CourseIDs {
			out[courseID] = append(out[courseID], teacher.ID)
		}
	}
	for courseID, ids := range out {
		out[courseID] = uniqueSorted(ids)
	}
	return out
}

func roomsFitting(classrooms []models.Classroom, enrollment int) []models.Classroom {
	out := make([]models.Classroom, 0, len(classrooms))
	for _, room := range classrooms {
		if room.Capacity >= enrollment {
			out = append(out, room)
		}
	}
	return out
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
