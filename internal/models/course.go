package models

import "time"

// CourseCategory buckets courses for curriculum requirements.
type CourseCategory string

const (
	CourseCategoryHumanities CourseCategory = "HUMANITIES"
	CourseCategoryCore       CourseCategory = "CORE"
	CourseCategoryElective   CourseCategory = "ELECTIVE"
	CourseCategoryGeneral    CourseCategory = "GENERAL"
)

// Course models a catalog course offered in one or both languages.
type Course struct {
	ID            string         `db:"id" json:"id"`
	CodeEs        string         `db:"code_es" json:"code_es"`
	CodeEn        string         `db:"code_en" json:"code_en"`
	NameEs        string         `db:"name_es" json:"name_es"`
	NameEn        string         `db:"name_en" json:"name_en"`
	DescriptionEs *string        `db:"description_es" json:"description_es,omitempty"`
	DescriptionEn *string        `db:"description_en" json:"description_en,omitempty"`
	Credits       int            `db:"credits" json:"credits"`
	Category      CourseCategory `db:"category" json:"category"`
	LanguageMode  LanguageMode   `db:"language_mode" json:"language_mode"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseFilter defines list criteria for courses.
type CourseFilter struct {
	Category  CourseCategory
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
