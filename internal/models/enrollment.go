package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusInProgress EnrollmentStatus = "IN_PROGRESS"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed     EnrollmentStatus = "FAILED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusIncomplete EnrollmentStatus = "INCOMPLETE"
)

// ActiveEnrollmentStatuses are the statuses that count toward the duplicate
// enrollment invariant and seat occupancy.
var ActiveEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusEnrolled,
	EnrollmentStatusInProgress,
	EnrollmentStatusIncomplete,
}

// Enrollment links a student to a section. Course, period and professor
// references are denormalized for query efficiency. The three derived grade
// fields are always replaced together by the grading path.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	SectionID       string           `db:"section_id" json:"section_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	PeriodID        string           `db:"period_id" json:"period_id"`
	ProfessorID     string           `db:"professor_id" json:"professor_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	SeatCounted     bool             `db:"seat_counted" json:"seat_counted"`
	PercentageGrade *float64         `db:"percentage_grade" json:"percentage_grade,omitempty"`
	LetterGrade     *string          `db:"letter_grade" json:"letter_grade,omitempty"`
	GradePoints     *float64         `db:"grade_points" json:"grade_points,omitempty"`
	QualityPoints   *float64         `db:"quality_points" json:"quality_points,omitempty"`
	EnrolledBy      string           `db:"enrolled_by" json:"enrolled_by"`
	GradedBy        *string          `db:"graded_by" json:"graded_by,omitempty"`
	EnrolledAt      time.Time        `db:"enrolled_at" json:"enrolled_at"`
	GradedAt        *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentCode   string `db:"student_code" json:"student_code"`
	SectionRef    string `db:"section_ref" json:"section_ref"`
	CourseNameEs  string `db:"course_name_es" json:"course_name_es"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	PeriodCode    string `db:"period_code" json:"period_code"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	PeriodID  string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
