package dto

import "github.com/noah-isme/sma-timetable/internal/models"

// GenerateTimetableRequest scopes a generation run. An empty list schedules every semester.
type GenerateTimetableRequest struct {
	SemesterIDs []string `json:"semesterIds" validate:"omitempty,max=200,dive,required,max=64"`
}

// GenerateTimetableResponse returns the drafts of the new batch and the courses left unplaced.
type GenerateTimetableResponse struct {
	BatchID          string                   `json:"batchId,omitempty"`
	PlacedEntries    []PlacedEntry            `json:"placedEntries"`
	UnplacedCourses  []models.UnplacedCourse  `json:"unplacedCourses"`
	SkippedSemesters []models.SkippedSemester `json:"skippedSemesters"`
}

// PlacedEntry is one draft booking of a generation run. Batch and timestamp columns are left
// out so identical inputs render identical placements.
type PlacedEntry struct {
	ID          string             `json:"id"`
	SemesterID  string             `json:"semester_id"`
	CourseID    string             `json:"course_id"`
	TeacherID   string             `json:"teacher_id"`
	ClassroomID string             `json:"classroom_id"`
	Day         models.Weekday     `json:"day"`
	StartTime   string             `json:"start_time"`
	EndTime     string             `json:"end_time"`
	Status      models.EntryStatus `json:"status"`
}

// NewPlacedEntries copies the booking fields of entries in order.
func NewPlacedEntries(entries []models.TimetableEntry) []PlacedEntry {
	out := make([]PlacedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, PlacedEntry{
			ID:          e.ID,
			SemesterID:  e.SemesterID,
			CourseID:    e.CourseID,
			TeacherID:   e.TeacherID,
			ClassroomID: e.ClassroomID,
			Day:         e.Day,
			StartTime:   e.StartTime,
			EndTime:     e.EndTime,
			Status:      e.Status,
		})
	}
	return out
}

// EntryQuery filters entry listings.
type EntryQuery struct {
	Status     string `form:"status" validate:"omitempty,oneof=DRAFT COMMITTED draft committed"`
	SemesterID string `form:"semesterId" validate:"omitempty,max=64"`
}

// UpsertEntryRequest creates an entry when ID is empty and updates it otherwise.
type UpsertEntryRequest struct {
	ID          string `json:"id,omitempty" validate:"omitempty,max=64"`
	SemesterID  string `json:"semester_id" validate:"required,max=64"`
	CourseID    string `json:"course_id" validate:"required,max=64"`
	TeacherID   string `json:"teacher_id" validate:"required,max=64"`
	ClassroomID string `json:"classroom_id" validate:"required,max=64"`
	Day         string `json:"day" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=DRAFT COMMITTED draft committed"`
}

// ConfirmTimetableResponse reports a successful confirmation.
type ConfirmTimetableResponse struct {
	BatchID  string `json:"batchId,omitempty"`
	Promoted int    `json:"promoted"`
}

// CancelTimetableResponse reports a cancellation.
type CancelTimetableResponse struct {
	BatchID   string `json:"batchId,omitempty"`
	Discarded int    `json:"discarded"`
}

// IndexReport summarises a rebuild or audit of the conflict index.
type IndexReport struct {
	Entries    int                    `json:"entries"`
	Drifted    bool                   `json:"drifted"`
	Rebuilt    bool                   `json:"rebuilt"`
	Degraded   bool                   `json:"degraded"`
	Collisions []models.DraftConflict `json:"collisions,omitempty"`
}
