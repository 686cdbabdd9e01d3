package models

import "time"

// SectionStatus tracks the lifecycle of a section offering.
type SectionStatus string

const (
	SectionStatusDraft     SectionStatus = "DRAFT"
	SectionStatusOpen      SectionStatus = "OPEN"
	SectionStatusClosed    SectionStatus = "CLOSED"
	SectionStatusActive    SectionStatus = "ACTIVE"
	SectionStatusGrading   SectionStatus = "GRADING"
	SectionStatusCompleted SectionStatus = "COMPLETED"
)

// DeliveryMethod indicates how a section is taught.
type DeliveryMethod string

const (
	DeliveryInPerson DeliveryMethod = "IN_PERSON"
	DeliveryOnline   DeliveryMethod = "ONLINE"
	DeliveryHybrid   DeliveryMethod = "HYBRID"
)

// Section is one offering of a course within a period. Enrolled and
// Waitlisted are derived counters maintained by the enrollment repository.
type Section struct {
	ID               string         `db:"id" json:"id"`
	CourseID         string         `db:"course_id" json:"course_id"`
	PeriodID         string         `db:"period_id" json:"period_id"`
	ProfessorID      string         `db:"professor_id" json:"professor_id"`
	GroupNumber      string         `db:"group_number" json:"group_number"`
	ReferenceCode    string         `db:"reference_code" json:"reference_code"`
	Capacity         int            `db:"capacity" json:"capacity"`
	Enrolled         int            `db:"enrolled" json:"enrolled"`
	WaitlistCapacity *int           `db:"waitlist_capacity" json:"waitlist_capacity,omitempty"`
	Waitlisted       int            `db:"waitlisted" json:"waitlisted"`
	Delivery         DeliveryMethod `db:"delivery" json:"delivery"`
	Schedule         *string        `db:"schedule" json:"schedule,omitempty"`
	Status           SectionStatus  `db:"status" json:"status"`
	GradesSubmitted  bool           `db:"grades_submitted" json:"grades_submitted"`
	Active           bool           `db:"active" json:"active"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// SectionDetail enriches Section with course, period and professor info.
type SectionDetail struct {
	Section
	CourseCodeEs  string `db:"course_code_es" json:"course_code_es"`
	CourseNameEs  string `db:"course_name_es" json:"course_name_es"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	PeriodCode    string `db:"period_code" json:"period_code"`
	ProfessorName string `db:"professor_name" json:"professor_name"`
}

// SectionFilter defines list criteria for sections.
type SectionFilter struct {
	CourseID    string
	PeriodID    string
	ProfessorID string
	Status      SectionStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
