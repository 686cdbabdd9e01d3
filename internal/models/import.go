package models

// ImportStudentRecord is one (student, grade) pair within a bulk class row.
type ImportStudentRecord struct {
	StudentCode     string  `json:"studentCode"`
	PercentageGrade float64 `json:"percentageGrade"`
}

// ImportClassRecord addresses a class by natural keys. Matching is
// case-insensitive and whitespace-trimmed on both sides.
type ImportClassRecord struct {
	ProgramCode    string                `json:"programCode"`
	CourseCode     string                `json:"courseCode"`
	BimesterName   string                `json:"bimesterName"`
	GroupNumber    string                `json:"groupNumber"`
	ProfessorEmail string                `json:"professorEmail"`
	Students       []ImportStudentRecord `json:"students"`
}

// ImportErrorType tags each per-record failure in the import report.
type ImportErrorType string

const (
	ImportErrProgramNotFound     ImportErrorType = "program_not_found"
	ImportErrCourseNotFound      ImportErrorType = "course_not_found"
	ImportErrBimesterNotFound    ImportErrorType = "bimester_not_found"
	ImportErrProfessorNotFound   ImportErrorType = "professor_not_found"
	ImportErrStudentNotFound     ImportErrorType = "student_not_found"
	ImportErrInvalidGrade        ImportErrorType = "invalid_grade"
	ImportErrClassCreationFailed ImportErrorType = "class_creation_failed"
	ImportErrEnrollmentFailed    ImportErrorType = "enrollment_failed"
	ImportErrUnknown             ImportErrorType = "unknown"
)

// ImportError locates one unresolved reference or failed write. Line is the
// zero-based index of the offending batch row.
type ImportError struct {
	Line        *int            `json:"line,omitempty"`
	ClassKey    string          `json:"classKey,omitempty"`
	StudentCode string          `json:"studentCode,omitempty"`
	Type        ImportErrorType `json:"type"`
	Message     string          `json:"message"`
	Data        interface{}     `json:"data,omitempty"`
}

// ImportReport is the final accounting of a bulk reconciliation run. The
// batch never aborts on a single bad row; callers must inspect Errors.
type ImportReport struct {
	ClassesProcessed      int           `json:"classesProcessed"`
	ClassesCreated        int           `json:"classesCreated"`
	ClassesAlreadyExisted int           `json:"classesAlreadyExisted"`
	EnrollmentsCreated    int           `json:"enrollmentsCreated"`
	EnrollmentsUpdated    int           `json:"enrollmentsUpdated"`
	Errors                []ImportError `json:"errors"`
	Warnings              []string      `json:"warnings"`
}
