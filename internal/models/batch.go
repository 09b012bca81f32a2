package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// BatchStatus represents lifecycle phases of a generation batch.
type BatchStatus string

const (
	BatchStatusOpen      BatchStatus = "OPEN"
	BatchStatusConfirmed BatchStatus = "CONFIRMED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

// TimetableBatch records one generation run whose drafts are confirmed or cancelled together.
type TimetableBatch struct {
	ID          string         `db:"id" json:"id"`
	Status      BatchStatus    `db:"status" json:"status"`
	SemesterIDs pq.StringArray `db:"semester_ids" json:"semester_ids"`
	Meta        types.JSONText `db:"meta" json:"meta"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// UnplacedReason explains why the generator could not place a course.
type UnplacedReason string

const (
	UnplacedNoEligibleTeacher UnplacedReason = "NO_ELIGIBLE_TEACHER"
	UnplacedNoClassroom       UnplacedReason = "NO_CLASSROOM_CAPACITY"
	UnplacedNoFreeSlot        UnplacedReason = "NO_FREE_SLOT"
)

// UnplacedCourse is a non-fatal generation warning.
type UnplacedCourse struct {
	SemesterID string         `json:"semester_id"`
	CourseID   string         `json:"course_id"`
	Reason     UnplacedReason `json:"reason"`
}

// SkippedSemester is a semester in scope that already owns timetable entries.
type SkippedSemester struct {
	SemesterID string `json:"semester_id"`
	Reason     string `json:"reason"`
}
