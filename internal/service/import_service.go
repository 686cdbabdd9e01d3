package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	"github.com/campuskit/academics-api/internal/repository"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type importProgramRepo interface {
	ListAll(ctx context.Context) ([]models.Program, error)
}

type importCourseRepo interface {
	ListAll(ctx context.Context) ([]models.Course, error)
}

type importPeriodRepo interface {
	ListAll(ctx context.Context) ([]models.Period, error)
}

type importUserRepo interface {
	ListAll(ctx context.Context) ([]models.User, error)
}

type importClassRepo interface {
	ListAll(ctx context.Context) ([]models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	FindByNaturalKey(ctx context.Context, courseID, periodID, groupNumber, programID string) (*models.Class, error)
	FindEnrollment(ctx context.Context, classID, studentID string) (*models.ClassEnrollment, error)
	CreateEnrollment(ctx context.Context, enrollment *models.ClassEnrollment) error
	UpdateEnrollmentGrade(ctx context.Context, id string, grade float64, status models.ClassEnrollmentStatus) error
}

// ImportLimits bounds a single batch.
type ImportLimits struct {
	MaxBatchSize   int
	MaxStudentsPer int
}

// ImportService is the bulk reconciliation pipeline: it resolves natural-key
// addressed class records against preloaded lookup maps and applies
// create-or-update semantics so the same batch can be re-run without
// producing duplicates. Rows are processed sequentially; every expected miss
// is recorded in the report, never thrown.
type ImportService struct {
	programs importProgramRepo
	courses  importCourseRepo
	periods  importPeriodRepo
	users    importUserRepo
	classes  importClassRepo
	limits   ImportLimits
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewImportService constructs ImportService.
func NewImportService(programs importProgramRepo, courses importCourseRepo, periods importPeriodRepo, users importUserRepo, classes importClassRepo, limits ImportLimits, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = 500
	}
	if limits.MaxStudentsPer <= 0 {
		limits.MaxStudentsPer = 200
	}
	return &ImportService{programs: programs, courses: courses, periods: periods, users: users, classes: classes, limits: limits, metrics: metrics, logger: logger}
}

// lookupTables holds the case-normalised natural-key indexes built once per
// batch so record resolution is O(1) and needs no per-row round-trips.
type lookupTables struct {
	programsByCode    map[string]string
	coursesByCode     map[string]string
	periodsByName     map[string]string
	professorsByEmail map[string]string
	studentsByCode    map[string]string
	classesByKey      map[string]*models.Class
}

func normKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func classMapKey(courseID, periodID, groupNumber, programID string) string {
	return courseID + "|" + periodID + "|" + normKey(groupNumber) + "|" + programID
}

func (s *ImportService) buildLookups(ctx context.Context) (*lookupTables, error) {
	tables := &lookupTables{
		programsByCode:    make(map[string]string),
		coursesByCode:     make(map[string]string),
		periodsByName:     make(map[string]string),
		professorsByEmail: make(map[string]string),
		studentsByCode:    make(map[string]string),
		classesByKey:      make(map[string]*models.Class),
	}

	programs, err := s.programs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload programs: %w", err)
	}
	for _, p := range programs {
		if code := normKey(p.CodeEs); code != "" {
			tables.programsByCode[code] = p.ID
		}
		if code := normKey(p.CodeEn); code != "" {
			tables.programsByCode[code] = p.ID
		}
	}

	courses, err := s.courses.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload courses: %w", err)
	}
	for _, c := range courses {
		if code := normKey(c.CodeEs); code != "" {
			tables.coursesByCode[code] = c.ID
		}
		if code := normKey(c.CodeEn); code != "" {
			tables.coursesByCode[code] = c.ID
		}
	}

	periods, err := s.periods.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload periods: %w", err)
	}
	for _, p := range periods {
		if name := normKey(p.Name); name != "" {
			tables.periodsByName[name] = p.ID
		}
		if code := normKey(p.Code); code != "" {
			tables.periodsByName[code] = p.ID
		}
	}

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload users: %w", err)
	}
	for _, u := range users {
		switch u.Role {
		case models.RoleProfessor:
			if email := strings.ToLower(strings.TrimSpace(u.Email)); email != "" {
				tables.professorsByEmail[email] = u.ID
			}
		case models.RoleStudent:
			if u.StudentCode != nil {
				if code := normKey(*u.StudentCode); code != "" {
					tables.studentsByCode[code] = u.ID
				}
			}
		}
	}

	classes, err := s.classes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("preload classes: %w", err)
	}
	for i := range classes {
		class := classes[i]
		tables.classesByKey[classMapKey(class.CourseID, class.PeriodID, class.GroupNumber, class.ProgramID)] = &class
	}

	return tables, nil
}

// Run processes the batch and returns the final accounting. The batch never
// aborts on a single bad row: resolution misses and per-row write failures
// are recorded and the remaining rows continue.
func (s *ImportService) Run(ctx context.Context, records []models.ImportClassRecord) (*models.ImportReport, error) {
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import batch is empty")
	}
	if len(records) > s.limits.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("import batch exceeds %d records", s.limits.MaxBatchSize))
	}

	tables, err := s.buildLookups(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to preload reference data")
	}

	report := &models.ImportReport{Errors: []models.ImportError{}, Warnings: []string{}}
	for i := range records {
		line := i
		s.processRecord(ctx, line, records[i], tables, report)
	}

	if s.metrics != nil {
		s.metrics.RecordImportReport(report)
	}
	s.logger.Info("bulk import finished",
		zap.Int("records", len(records)),
		zap.Int("classes_created", report.ClassesCreated),
		zap.Int("enrollments_created", report.EnrollmentsCreated),
		zap.Int("enrollments_updated", report.EnrollmentsUpdated),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *ImportService) processRecord(ctx context.Context, line int, record models.ImportClassRecord, tables *lookupTables, report *models.ImportReport) {
	classKey := fmt.Sprintf("%s/%s/%s/g%s",
		strings.TrimSpace(record.ProgramCode),
		strings.TrimSpace(record.CourseCode),
		strings.TrimSpace(record.BimesterName),
		strings.TrimSpace(record.GroupNumber))

	defer func() {
		if r := recover(); r != nil {
			report.Errors = append(report.Errors, models.ImportError{
				Line:     &line,
				ClassKey: classKey,
				Type:     models.ImportErrUnknown,
				Message:  fmt.Sprintf("unexpected failure: %v", r),
			})
			s.logger.Error("import record panicked", zap.Int("line", line), zap.String("class_key", classKey), zap.Any("panic", r))
		}
	}()

	programID, ok := tables.programsByCode[normKey(record.ProgramCode)]
	if !ok {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, Type: models.ImportErrProgramNotFound,
			Message: fmt.Sprintf("program %q not found", record.ProgramCode), Data: record.ProgramCode,
		})
		return
	}
	courseID, ok := tables.coursesByCode[normKey(record.CourseCode)]
	if !ok {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, Type: models.ImportErrCourseNotFound,
			Message: fmt.Sprintf("course %q not found", record.CourseCode), Data: record.CourseCode,
		})
		return
	}
	periodID, ok := tables.periodsByName[normKey(record.BimesterName)]
	if !ok {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, Type: models.ImportErrBimesterNotFound,
			Message: fmt.Sprintf("bimester %q not found", record.BimesterName), Data: record.BimesterName,
		})
		return
	}
	professorID, ok := tables.professorsByEmail[strings.ToLower(strings.TrimSpace(record.ProfessorEmail))]
	if !ok {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, Type: models.ImportErrProfessorNotFound,
			Message: fmt.Sprintf("professor %q not found", record.ProfessorEmail), Data: record.ProfessorEmail,
		})
		return
	}

	class, created, err := s.resolveClass(ctx, courseID, periodID, record.GroupNumber, programID, professorID, tables)
	if err != nil {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, Type: models.ImportErrClassCreationFailed,
			Message: fmt.Sprintf("failed to create class: %v", err),
		})
		return
	}
	report.ClassesProcessed++
	if created {
		report.ClassesCreated++
	} else {
		report.ClassesAlreadyExisted++
		report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: reused existing class %s", line, classKey))
	}

	if len(record.Students) > s.limits.MaxStudentsPer {
		report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: student list truncated to %d entries", line, s.limits.MaxStudentsPer))
		record.Students = record.Students[:s.limits.MaxStudentsPer]
	}

	for _, student := range record.Students {
		s.processStudent(ctx, line, classKey, class, student, tables, report)
	}
}

// resolveClass reuses an existing class for the natural-key tuple or creates
// one. A unique index backs the tuple; losing a create race degrades to a
// re-fetch and counts as reuse.
func (s *ImportService) resolveClass(ctx context.Context, courseID, periodID, groupNumber, programID, professorID string, tables *lookupTables) (*models.Class, bool, error) {
	key := classMapKey(courseID, periodID, groupNumber, programID)
	if class, ok := tables.classesByKey[key]; ok {
		return class, false, nil
	}

	class := &models.Class{
		ProgramID:   programID,
		CourseID:    courseID,
		PeriodID:    periodID,
		GroupNumber: strings.TrimSpace(groupNumber),
		ProfessorID: professorID,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		if !repository.IsUniqueViolation(err) {
			return nil, false, err
		}
		existing, findErr := s.classes.FindByNaturalKey(ctx, courseID, periodID, class.GroupNumber, programID)
		if findErr != nil {
			return nil, false, err
		}
		tables.classesByKey[key] = existing
		return existing, false, nil
	}
	tables.classesByKey[key] = class
	return class, true, nil
}

func (s *ImportService) processStudent(ctx context.Context, line int, classKey string, class *models.Class, student models.ImportStudentRecord, tables *lookupTables, report *models.ImportReport) {
	studentID, ok := tables.studentsByCode[normKey(student.StudentCode)]
	if !ok {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, StudentCode: student.StudentCode,
			Type:    models.ImportErrStudentNotFound,
			Message: fmt.Sprintf("student %q not found", student.StudentCode),
			Data:    student.StudentCode,
		})
		return
	}
	if !ValidPercentage(student.PercentageGrade) {
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, StudentCode: student.StudentCode,
			Type:    models.ImportErrInvalidGrade,
			Message: fmt.Sprintf("grade %v is not a number between 0 and 100", student.PercentageGrade),
			Data:    student.PercentageGrade,
		})
		return
	}

	existing, err := s.classes.FindEnrollment(ctx, class.ID, studentID)
	switch {
	case err == nil:
		if err := s.classes.UpdateEnrollmentGrade(ctx, existing.ID, student.PercentageGrade, models.ClassEnrollmentStatusCompleted); err != nil {
			report.Errors = append(report.Errors, models.ImportError{
				Line: &line, ClassKey: classKey, StudentCode: student.StudentCode,
				Type:    models.ImportErrEnrollmentFailed,
				Message: fmt.Sprintf("failed to update enrollment: %v", err),
			})
			return
		}
		report.EnrollmentsUpdated++
	case errors.Is(err, sql.ErrNoRows):
		grade := student.PercentageGrade
		enrollment := &models.ClassEnrollment{
			ClassID:         class.ID,
			StudentID:       studentID,
			PercentageGrade: &grade,
			Status:          models.ClassEnrollmentStatusCompleted,
		}
		if err := s.classes.CreateEnrollment(ctx, enrollment); err != nil {
			report.Errors = append(report.Errors, models.ImportError{
				Line: &line, ClassKey: classKey, StudentCode: student.StudentCode,
				Type:    models.ImportErrEnrollmentFailed,
				Message: fmt.Sprintf("failed to create enrollment: %v", err),
			})
			return
		}
		report.EnrollmentsCreated++
	default:
		report.Errors = append(report.Errors, models.ImportError{
			Line: &line, ClassKey: classKey, StudentCode: student.StudentCode,
			Type:    models.ImportErrEnrollmentFailed,
			Message: fmt.Sprintf("failed to look up enrollment: %v", err),
		})
	}
}
