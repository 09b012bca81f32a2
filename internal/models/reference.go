package models

// Semester is a cohort of one program in one academic year. Enrollment is the
// number of students registered in it and drives the classroom capacity filter.
type Semester struct {
	ID         string `db:"id" json:"id"`
	ProgramID  string `db:"program_id" json:"program_id"`
	YearNumber int    `db:"year_number" json:"year_number"`
	Name       string `db:"name" json:"name"`
	Enrollment int    `db:"enrollment" json:"enrollment"`
}

// SemesterCourse lists a course required by a semester's curriculum.
type SemesterCourse struct {
	SemesterID string `db:"semester_id" json:"semester_id"`
	CourseID   string `db:"course_id" json:"course_id"`
}

// Teacher is an instructor together with the courses they may teach.
type Teacher struct {
	ID        string   `db:"id" json:"id"`
	FullName  string   `db:"full_name" json:"full_name"`
	CourseIDs []string `db:"-" json:"course_ids"`
}

// TeacherCourse is one row of teacher eligibility.
type TeacherCourse struct {
	TeacherID string `db:"teacher_id"`
	CourseID  string `db:"course_id"`
}

// Classroom is a bookable room.
type Classroom struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Capacity int    `db:"capacity" json:"capacity"`
}
