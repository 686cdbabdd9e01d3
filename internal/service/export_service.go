package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
	"github.com/campuskit/academics-api/pkg/export"
)

type exportEnrollmentRepo interface {
	ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type exportSectionRepo interface {
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

type exportStudentRepo interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ExportFile pairs rendered bytes with download metadata.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders grade sheets, transcripts and import reports into
// downloadable documents.
type ExportService struct {
	enrollments exportEnrollmentRepo
	sections    exportSectionRepo
	students    exportStudentRepo
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(enrollments exportEnrollmentRepo, sections exportSectionRepo, students exportStudentRepo, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		sections:    sections,
		students:    students,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
}

// Subtitle separators stay ASCII: the PDF core fonts are cp1252-encoded and
// multi-byte punctuation comes out garbled.
func gradeSheetSubtitle(section *models.SectionDetail) string {
	return fmt.Sprintf("%s - %s - %s", section.CourseNameEs, section.ReferenceCode, section.ProfessorName)
}

func transcriptSubtitle(fullName, studentCode string, gpa float64) string {
	return fmt.Sprintf("%s (%s) - GPA %.2f", fullName, studentCode, gpa)
}

func formatGrade(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', 1, 64)
}

func formatLetter(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// GradeSheetPDF renders the section roster with derived grades.
func (s *ExportService) GradeSheetPDF(ctx context.Context, sectionID string) (*ExportFile, error) {
	section, err := s.sections.FindDetailByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	enrollments, err := s.enrollments.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list section enrollments")
	}

	data := export.Dataset{
		Headers: []string{"Code", "Student", "Status", "Grade %", "Letter", "Points"},
	}
	for _, e := range enrollments {
		data.Rows = append(data.Rows, map[string]string{
			"Code":    e.StudentCode,
			"Student": e.StudentName,
			"Status":  string(e.Status),
			"Grade %": formatGrade(e.PercentageGrade),
			"Letter":  formatLetter(e.LetterGrade),
			"Points":  formatGrade(e.GradePoints),
		})
	}

	content, err := s.pdf.Render(data, "Grade Sheet", gradeSheetSubtitle(section))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render grade sheet")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("grade-sheet-%s.pdf", section.ReferenceCode),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

// TranscriptPDF renders a student's full academic history with the GPA
// computed as total quality points over total graded credits.
func (s *ExportService) TranscriptPDF(ctx context.Context, studentID string) (*ExportFile, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}

	data := export.Dataset{
		Headers: []string{"Period", "Course", "Credits", "Grade %", "Letter", "Quality"},
	}
	var totalQuality float64
	var totalCredits int
	for _, e := range enrollments {
		data.Rows = append(data.Rows, map[string]string{
			"Period":  e.PeriodCode,
			"Course":  e.CourseNameEs,
			"Credits": strconv.Itoa(e.CourseCredits),
			"Grade %": formatGrade(e.PercentageGrade),
			"Letter":  formatLetter(e.LetterGrade),
			"Quality": formatGrade(e.QualityPoints),
		})
		if e.QualityPoints != nil {
			totalQuality += *e.QualityPoints
			totalCredits += e.CourseCredits
		}
	}

	gpa := 0.0
	if totalCredits > 0 {
		gpa = totalQuality / float64(totalCredits)
	}
	code := ""
	if student.StudentCode != nil {
		code = *student.StudentCode
	}
	content, err := s.pdf.Render(data, "Academic Transcript", transcriptSubtitle(student.FullName, code, gpa))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("transcript-%s.pdf", code),
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

// ImportReportCSV flattens an import report's errors into a CSV for offline
// correction of the source file.
func (s *ExportService) ImportReportCSV(report *models.ImportReport) (*ExportFile, error) {
	if report == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no report to export")
	}

	data := export.Dataset{
		Headers: []string{"Line", "Class", "Student", "Type", "Message"},
	}
	for _, impErr := range report.Errors {
		line := ""
		if impErr.Line != nil {
			line = strconv.Itoa(*impErr.Line)
		}
		data.Rows = append(data.Rows, map[string]string{
			"Line":    line,
			"Class":   impErr.ClassKey,
			"Student": impErr.StudentCode,
			"Type":    string(impErr.Type),
			"Message": impErr.Message,
		})
	}

	content, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render import report")
	}
	return &ExportFile{
		Filename:    "import-errors.csv",
		ContentType: "text/csv",
		Content:     content,
	}, nil
}
