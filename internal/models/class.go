package models

import "time"

// Class is the administrative grouping used by the bulk reconciliation
// importer. It is distinct from Section: classes are addressed by the
// natural-key tuple (program, course, period, group) and carry their own
// enrollment join records. The tuple is unique.
type Class struct {
	ID          string    `db:"id" json:"id"`
	ProgramID   string    `db:"program_id" json:"program_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	PeriodID    string    `db:"period_id" json:"period_id"`
	GroupNumber string    `db:"group_number" json:"group_number"`
	ProfessorID string    `db:"professor_id" json:"professor_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassEnrollmentStatus tracks class enrollment lifecycle.
type ClassEnrollmentStatus string

const (
	ClassEnrollmentStatusEnrolled  ClassEnrollmentStatus = "ENROLLED"
	ClassEnrollmentStatusCompleted ClassEnrollmentStatus = "COMPLETED"
)

// ClassEnrollment joins a student to an imported class. At most one row
// exists per (class, student) pair; re-imports update in place.
type ClassEnrollment struct {
	ID              string                `db:"id" json:"id"`
	ClassID         string                `db:"class_id" json:"class_id"`
	StudentID       string                `db:"student_id" json:"student_id"`
	PercentageGrade *float64              `db:"percentage_grade" json:"percentage_grade,omitempty"`
	Status          ClassEnrollmentStatus `db:"status" json:"status"`
	CreatedAt       time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time             `db:"updated_at" json:"updated_at"`
}
