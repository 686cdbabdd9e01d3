package models

import "time"

// ProgramType classifies the academic level of a program.
type ProgramType string

const (
	ProgramTypeDiploma   ProgramType = "DIPLOMA"
	ProgramTypeBachelor  ProgramType = "BACHELOR"
	ProgramTypeMaster    ProgramType = "MASTER"
	ProgramTypeDoctorate ProgramType = "DOCTORATE"
)

// Program models an academic program. TotalCredits is derived from active
// course associations and must never be written directly by callers.
type Program struct {
	ID              string       `db:"id" json:"id"`
	CodeEs          string       `db:"code_es" json:"code_es"`
	CodeEn          string       `db:"code_en" json:"code_en"`
	NameEs          string       `db:"name_es" json:"name_es"`
	NameEn          string       `db:"name_en" json:"name_en"`
	DescriptionEs   *string      `db:"description_es" json:"description_es,omitempty"`
	DescriptionEn   *string      `db:"description_en" json:"description_en,omitempty"`
	Type            ProgramType  `db:"type" json:"type"`
	LanguageMode    LanguageMode `db:"language_mode" json:"language_mode"`
	TotalCredits    int          `db:"total_credits" json:"total_credits"`
	DurationPeriods int          `db:"duration_periods" json:"duration_periods"`
	Active          bool         `db:"active" json:"active"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// ProgramCourse joins a program to a course in its curriculum.
type ProgramCourse struct {
	ID               string          `db:"id" json:"id"`
	ProgramID        string          `db:"program_id" json:"program_id"`
	CourseID         string          `db:"course_id" json:"course_id"`
	IsRequired       bool            `db:"is_required" json:"is_required"`
	CategoryOverride *CourseCategory `db:"category_override" json:"category_override,omitempty"`
	Active           bool            `db:"active" json:"active"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// ProgramCourseDetail enriches an association with course info for listings.
type ProgramCourseDetail struct {
	ProgramCourse
	CourseCodeEs  string `db:"course_code_es" json:"course_code_es"`
	CourseNameEs  string `db:"course_name_es" json:"course_name_es"`
	CourseCredits int    `db:"course_credits" json:"course_credits"`
	CourseActive  bool   `db:"course_active" json:"course_active"`
}

// ProgramFilter defines list criteria for programs.
type ProgramFilter struct {
	Type      ProgramType
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
