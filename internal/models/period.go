package models

import "time"

// PeriodStatus tracks the lifecycle of an academic period.
type PeriodStatus string

const (
	PeriodStatusPlanning   PeriodStatus = "PLANNING"
	PeriodStatusEnrollment PeriodStatus = "ENROLLMENT"
	PeriodStatusActive     PeriodStatus = "ACTIVE"
	PeriodStatusGrading    PeriodStatus = "GRADING"
	PeriodStatusClosed     PeriodStatus = "CLOSED"
)

// Period models an academic term (bimester). At most one period may carry
// IsCurrent at any time; the repository enforces this transactionally.
type Period struct {
	ID              string       `db:"id" json:"id"`
	Code            string       `db:"code" json:"code"`
	Name            string       `db:"name" json:"name"`
	StartDate       time.Time    `db:"start_date" json:"start_date"`
	EndDate         time.Time    `db:"end_date" json:"end_date"`
	EnrollmentStart time.Time    `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd   time.Time    `db:"enrollment_end" json:"enrollment_end"`
	GradingDeadline time.Time    `db:"grading_deadline" json:"grading_deadline"`
	Status          PeriodStatus `db:"status" json:"status"`
	IsCurrent       bool         `db:"is_current" json:"is_current"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// PeriodFilter defines list criteria for periods.
type PeriodFilter struct {
	Status    PeriodStatus
	IsCurrent *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
