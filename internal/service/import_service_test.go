package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type mockImportCatalog struct {
	programs []models.Program
	courses  []models.Course
	periods  []models.Period
	users    []models.User
}

func (m *mockImportCatalog) programRepo() *mockImportProgramRepo { return &mockImportProgramRepo{m} }
func (m *mockImportCatalog) courseRepo() *mockImportCourseRepo   { return &mockImportCourseRepo{m} }
func (m *mockImportCatalog) periodRepo() *mockImportPeriodRepo   { return &mockImportPeriodRepo{m} }
func (m *mockImportCatalog) userRepo() *mockImportUserRepo       { return &mockImportUserRepo{m} }

type mockImportProgramRepo struct{ c *mockImportCatalog }

func (m *mockImportProgramRepo) ListAll(ctx context.Context) ([]models.Program, error) {
	return m.c.programs, nil
}

type mockImportCourseRepo struct{ c *mockImportCatalog }

func (m *mockImportCourseRepo) ListAll(ctx context.Context) ([]models.Course, error) {
	return m.c.courses, nil
}

type mockImportPeriodRepo struct{ c *mockImportCatalog }

func (m *mockImportPeriodRepo) ListAll(ctx context.Context) ([]models.Period, error) {
	return m.c.periods, nil
}

type mockImportUserRepo struct{ c *mockImportCatalog }

func (m *mockImportUserRepo) ListAll(ctx context.Context) ([]models.User, error) {
	return m.c.users, nil
}

type mockImportClassRepo struct {
	classes     map[string]*models.Class
	enrollments map[string]*models.ClassEnrollment // classID|studentID
	// shadow simulates a row committed by a concurrent writer: invisible to
	// ListAll but found by FindByNaturalKey.
	shadow    *models.Class
	nextID    int
	createErr error
	updates   int
}

func newMockImportClassRepo() *mockImportClassRepo {
	return &mockImportClassRepo{
		classes:     make(map[string]*models.Class),
		enrollments: make(map[string]*models.ClassEnrollment),
	}
}

func (m *mockImportClassRepo) ListAll(ctx context.Context) ([]models.Class, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockImportClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	class.ID = fmt.Sprintf("class-%d", m.nextID)
	m.classes[class.ID] = class
	return nil
}

func (m *mockImportClassRepo) FindByNaturalKey(ctx context.Context, courseID, periodID, groupNumber, programID string) (*models.Class, error) {
	if m.shadow != nil && m.shadow.CourseID == courseID && m.shadow.PeriodID == periodID &&
		m.shadow.GroupNumber == groupNumber && m.shadow.ProgramID == programID {
		return m.shadow, nil
	}
	for _, c := range m.classes {
		if c.CourseID == courseID && c.PeriodID == periodID && c.GroupNumber == groupNumber && c.ProgramID == programID {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockImportClassRepo) FindEnrollment(ctx context.Context, classID, studentID string) (*models.ClassEnrollment, error) {
	if e, ok := m.enrollments[classID+"|"+studentID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockImportClassRepo) CreateEnrollment(ctx context.Context, enrollment *models.ClassEnrollment) error {
	m.nextID++
	enrollment.ID = fmt.Sprintf("ce-%d", m.nextID)
	m.enrollments[enrollment.ClassID+"|"+enrollment.StudentID] = enrollment
	return nil
}

func (m *mockImportClassRepo) UpdateEnrollmentGrade(ctx context.Context, id string, grade float64, status models.ClassEnrollmentStatus) error {
	for _, e := range m.enrollments {
		if e.ID == id {
			g := grade
			e.PercentageGrade = &g
			e.Status = status
			m.updates++
			return nil
		}
	}
	return sql.ErrNoRows
}

func importFixture() (*mockImportCatalog, *mockImportClassRepo) {
	studentCode := "STU-001"
	catalog := &mockImportCatalog{
		programs: []models.Program{{ID: "prog-1", CodeEs: "ING-SIS", CodeEn: "SYS-ENG"}},
		courses:  []models.Course{{ID: "crs-1", CodeEs: "MAT-101", CodeEn: "MATH-101"}},
		periods:  []models.Period{{ID: "per-1", Name: "Bimestre I 2026", Code: "2026-B1"}},
		users: []models.User{
			{ID: "prof-1", Role: models.RoleProfessor, Email: "prof@campus.edu", Active: true},
			{ID: "stu-1", Role: models.RoleStudent, StudentCode: &studentCode, Active: true},
		},
	}
	return catalog, newMockImportClassRepo()
}

func importRecord() models.ImportClassRecord {
	return models.ImportClassRecord{
		ProgramCode:    "ing-sis",
		CourseCode:     " mat-101 ",
		BimesterName:   "bimestre i 2026",
		GroupNumber:    "1",
		ProfessorEmail: "PROF@campus.edu",
		Students:       []models.ImportStudentRecord{{StudentCode: "stu-001", PercentageGrade: 87.5}},
	}
}

func newImportService(catalog *mockImportCatalog, classes *mockImportClassRepo, limits ImportLimits) *ImportService {
	return NewImportService(catalog.programRepo(), catalog.courseRepo(), catalog.periodRepo(), catalog.userRepo(), classes, limits, nil, nil)
}

func TestImportCreatesClassAndEnrollment(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	report, err := svc.Run(context.Background(), []models.ImportClassRecord{importRecord()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ClassesProcessed)
	assert.Equal(t, 1, report.ClassesCreated)
	assert.Equal(t, 0, report.ClassesAlreadyExisted)
	assert.Equal(t, 1, report.EnrollmentsCreated)
	assert.Equal(t, 0, report.EnrollmentsUpdated)
	assert.Empty(t, report.Errors)

	require.Len(t, classes.classes, 1)
	for _, class := range classes.classes {
		assert.Equal(t, "prog-1", class.ProgramID)
		assert.Equal(t, "crs-1", class.CourseID)
		assert.Equal(t, "per-1", class.PeriodID)
		assert.Equal(t, "prof-1", class.ProfessorID)
	}
	require.Len(t, classes.enrollments, 1)
	for _, e := range classes.enrollments {
		assert.Equal(t, "stu-1", e.StudentID)
		assert.Equal(t, models.ClassEnrollmentStatusCompleted, e.Status)
		require.NotNil(t, e.PercentageGrade)
		assert.Equal(t, 87.5, *e.PercentageGrade)
	}
}

func TestImportRerunIsIdempotent(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	_, err := svc.Run(context.Background(), []models.ImportClassRecord{importRecord()})
	require.NoError(t, err)

	record := importRecord()
	record.Students[0].PercentageGrade = 93
	report, err := svc.Run(context.Background(), []models.ImportClassRecord{record})
	require.NoError(t, err)

	assert.Equal(t, 0, report.ClassesCreated)
	assert.Equal(t, 1, report.ClassesAlreadyExisted)
	assert.Equal(t, 0, report.EnrollmentsCreated)
	assert.Equal(t, 1, report.EnrollmentsUpdated)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "reused existing class")

	require.Len(t, classes.classes, 1)
	require.Len(t, classes.enrollments, 1)
	for _, e := range classes.enrollments {
		assert.Equal(t, 93.0, *e.PercentageGrade)
	}
}

func TestImportUnresolvedReferences(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*models.ImportClassRecord)
		errType models.ImportErrorType
	}{
		{"program", func(r *models.ImportClassRecord) { r.ProgramCode = "NOPE" }, models.ImportErrProgramNotFound},
		{"course", func(r *models.ImportClassRecord) { r.CourseCode = "NOPE" }, models.ImportErrCourseNotFound},
		{"bimester", func(r *models.ImportClassRecord) { r.BimesterName = "NOPE" }, models.ImportErrBimesterNotFound},
		{"professor", func(r *models.ImportClassRecord) { r.ProfessorEmail = "nope@campus.edu" }, models.ImportErrProfessorNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog, classes := importFixture()
			svc := newImportService(catalog, classes, ImportLimits{})

			record := importRecord()
			tc.mutate(&record)
			report, err := svc.Run(context.Background(), []models.ImportClassRecord{record})
			require.NoError(t, err)

			require.Len(t, report.Errors, 1)
			assert.Equal(t, tc.errType, report.Errors[0].Type)
			require.NotNil(t, report.Errors[0].Line)
			assert.Equal(t, 0, *report.Errors[0].Line)
			assert.Equal(t, 0, report.ClassesProcessed)
			assert.Empty(t, classes.classes)
		})
	}
}

func TestImportBadRowDoesNotAbortBatch(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	bad := importRecord()
	bad.CourseCode = "UNKNOWN"
	report, err := svc.Run(context.Background(), []models.ImportClassRecord{bad, importRecord()})
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.ImportErrCourseNotFound, report.Errors[0].Type)
	assert.Equal(t, 1, report.ClassesCreated)
	assert.Equal(t, 1, report.EnrollmentsCreated)
}

func TestImportInvalidGrade(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	record := importRecord()
	record.Students[0].PercentageGrade = 101
	report, err := svc.Run(context.Background(), []models.ImportClassRecord{record})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ClassesCreated)
	assert.Equal(t, 0, report.EnrollmentsCreated)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.ImportErrInvalidGrade, report.Errors[0].Type)
	assert.Equal(t, "stu-001", report.Errors[0].StudentCode)
}

func TestImportUnknownStudent(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	record := importRecord()
	record.Students = append(record.Students, models.ImportStudentRecord{StudentCode: "GHOST", PercentageGrade: 70})
	report, err := svc.Run(context.Background(), []models.ImportClassRecord{record})
	require.NoError(t, err)

	assert.Equal(t, 1, report.EnrollmentsCreated)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.ImportErrStudentNotFound, report.Errors[0].Type)
}

func TestImportLostCreateRaceCountsAsReuse(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	classes.createErr = fmt.Errorf("create class: %w", &pq.Error{Code: "23505"})
	classes.shadow = &models.Class{
		ID: "class-race", ProgramID: "prog-1", CourseID: "crs-1", PeriodID: "per-1", GroupNumber: "1", ProfessorID: "prof-1",
	}

	report, err := svc.Run(context.Background(), []models.ImportClassRecord{importRecord()})
	require.NoError(t, err)

	assert.Empty(t, report.Errors)
	assert.Equal(t, 0, report.ClassesCreated)
	assert.Equal(t, 1, report.ClassesAlreadyExisted)
	assert.Equal(t, 1, report.EnrollmentsCreated)
	for _, e := range classes.enrollments {
		assert.Equal(t, "class-race", e.ClassID)
	}
}

func TestImportClassCreationFailure(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{})

	classes.createErr = errors.New("db down")

	report, err := svc.Run(context.Background(), []models.ImportClassRecord{importRecord()})
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.ImportErrClassCreationFailed, report.Errors[0].Type)
	assert.Equal(t, 0, report.ClassesProcessed)
	assert.Empty(t, classes.enrollments)
}

func TestImportBatchLimits(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{MaxBatchSize: 2})

	_, err := svc.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	batch := []models.ImportClassRecord{importRecord(), importRecord(), importRecord()}
	_, err = svc.Run(context.Background(), batch)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestImportTruncatesOversizeStudentList(t *testing.T) {
	catalog, classes := importFixture()
	svc := newImportService(catalog, classes, ImportLimits{MaxStudentsPer: 1})

	record := importRecord()
	record.Students = append(record.Students, models.ImportStudentRecord{StudentCode: "STU-001", PercentageGrade: 50})
	report, err := svc.Run(context.Background(), []models.ImportClassRecord{record})
	require.NoError(t, err)

	assert.Equal(t, 1, report.EnrollmentsCreated)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "truncated")
	require.Len(t, classes.enrollments, 1)
}
