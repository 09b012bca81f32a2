package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryStatus distinguishes tentative entries from the canonical timetable.
type EntryStatus string

const (
	EntryStatusDraft     EntryStatus = "DRAFT"
	EntryStatusCommitted EntryStatus = "COMMITTED"
)

// Valid reports whether the status is one of the known lifecycle values.
func (s EntryStatus) Valid() bool {
	return s == EntryStatusDraft || s == EntryStatusCommitted
}

// ParseEntryStatus normalises user input into an EntryStatus.
func ParseEntryStatus(raw string) (EntryStatus, bool) {
	status := EntryStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// TimetableEntry books one course session of a semester into a slot, classroom and teacher.
type TimetableEntry struct {
	ID          string      `db:"id" json:"id"`
	SemesterID  string      `db:"semester_id" json:"semester_id"`
	CourseID    string      `db:"course_id" json:"course_id"`
	TeacherID   string      `db:"teacher_id" json:"teacher_id"`
	ClassroomID string      `db:"classroom_id" json:"classroom_id"`
	Day         Weekday     `db:"day" json:"day"`
	StartTime   string      `db:"start_time" json:"start_time"`
	EndTime     string      `db:"end_time" json:"end_time"`
	Status      EntryStatus `db:"status" json:"status"`
	BatchID     *string     `db:"batch_id" json:"batch_id,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ValidEntryID reports whether id can name a stored entry. Entry ids are UUIDs, so anything
// else cannot match a row.
func ValidEntryID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Slot returns the (day, start) pair the entry occupies.
func (e TimetableEntry) Slot() Slot {
	return Slot{Day: e.Day, StartTime: e.StartTime}
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	Status     EntryStatus
	SemesterID string
}

// ConflictDimension names the resource whose uniqueness would be violated.
type ConflictDimension string

const (
	DimensionClassroom ConflictDimension = "classroom"
	DimensionSemester  ConflictDimension = "semester"
	DimensionTeacher   ConflictDimension = "teacher"
)

// Conflict describes one violated dimension and the entry already holding it.
type Conflict struct {
	Dimension       ConflictDimension `json:"dimension"`
	BlockingEntryID string            `json:"blocking_entry_id"`
	Day             Weekday           `json:"day"`
	StartTime       string            `json:"start_time"`
}

// ConflictError is returned when a booking would double-book a classroom, semester or teacher.
type ConflictError struct {
	EntryID   string     `json:"entry_id,omitempty"`
	Conflicts []Conflict `json:"conflicts"`
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s held by %s", c.Dimension, c.BlockingEntryID))
	}
	return fmt.Sprintf("slot conflict: %s", strings.Join(parts, ", "))
}

// Dimensions lists the violated dimensions in report order.
func (e *ConflictError) Dimensions() []ConflictDimension {
	if e == nil {
		return nil
	}
	dims := make([]ConflictDimension, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		dims = append(dims, c.Dimension)
	}
	return dims
}

// DraftConflict pairs a draft entry with the conflicts found while confirming it.
type DraftConflict struct {
	EntryID   string     `json:"entry_id"`
	Conflicts []Conflict `json:"conflicts"`
}

// ConfirmationConflictError aborts a confirmation; no draft was promoted.
type ConfirmationConflictError struct {
	Drafts []DraftConflict `json:"drafts"`
}

// Error implements the error interface.
func (e *ConfirmationConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d draft entries conflict with the committed timetable", len(e.Drafts))
}
