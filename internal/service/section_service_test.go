package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type mockSectionRepo struct {
	sections map[string]*models.Section
	refCodes map[string]string // reference code -> id
	nextID   int
}

func newMockSectionRepo() *mockSectionRepo {
	return &mockSectionRepo{sections: make(map[string]*models.Section), refCodes: make(map[string]string)}
}

func (m *mockSectionRepo) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.Section, error) {
	if s, ok := m.sections[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	if s, ok := m.sections[id]; ok {
		return &models.SectionDetail{Section: *s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSectionRepo) ExistsReferenceCode(ctx context.Context, code, excludeID string) (bool, error) {
	id, ok := m.refCodes[code]
	return ok && id != excludeID, nil
}

func (m *mockSectionRepo) Create(ctx context.Context, section *models.Section) error {
	m.nextID++
	section.ID = fmt.Sprintf("sec-%d", m.nextID)
	m.sections[section.ID] = section
	m.refCodes[section.ReferenceCode] = section.ID
	return nil
}

func (m *mockSectionRepo) Update(ctx context.Context, section *models.Section) error {
	m.sections[section.ID] = section
	return nil
}

func (m *mockSectionRepo) UpdateStatus(ctx context.Context, id string, status models.SectionStatus) error {
	m.sections[id].Status = status
	return nil
}

func (m *mockSectionRepo) SetGradesSubmitted(ctx context.Context, id string, submitted bool) error {
	m.sections[id].GradesSubmitted = submitted
	return nil
}

func (m *mockSectionRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.sections[id].Active = active
	return nil
}

type mockSectionCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockSectionCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionPeriodReader struct {
	periods map[string]*models.Period
}

func (m *mockSectionPeriodReader) FindByID(ctx context.Context, id string) (*models.Period, error) {
	if p, ok := m.periods[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockSectionProfessorReader struct {
	users map[string]*models.User
}

func (m *mockSectionProfessorReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func sectionFixture() (*mockSectionRepo, *mockSectionCourseReader, *mockSectionPeriodReader, *mockSectionProfessorReader) {
	repo := newMockSectionRepo()
	courses := &mockSectionCourseReader{courses: map[string]*models.Course{
		"crs-1": {ID: "crs-1", CodeEs: "MAT-101", Active: true},
	}}
	periods := &mockSectionPeriodReader{periods: map[string]*models.Period{
		"per-1": {ID: "per-1", Code: "2026-B1", Status: models.PeriodStatusEnrollment},
	}}
	professors := &mockSectionProfessorReader{users: map[string]*models.User{
		"prof-1": {ID: "prof-1", Role: models.RoleProfessor, Active: true},
	}}
	return repo, courses, periods, professors
}

func sectionRequest() CreateSectionRequest {
	return CreateSectionRequest{
		CourseID:    "crs-1",
		PeriodID:    "per-1",
		ProfessorID: "prof-1",
		GroupNumber: "a",
		Capacity:    30,
		Delivery:    models.DeliveryInPerson,
	}
}

func TestCreateSectionDerivesReferenceCode(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	detail, err := svc.Create(context.Background(), sectionRequest())
	require.NoError(t, err)

	assert.Equal(t, "MAT-101-A-2026-B1", detail.ReferenceCode)
	assert.Equal(t, "A", detail.GroupNumber)
	assert.Equal(t, models.SectionStatusDraft, detail.Status)
	assert.True(t, detail.Active)
}

func TestCreateSectionFallsBackToEnglishCode(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	courses.courses["crs-1"].CodeEs = ""
	courses.courses["crs-1"].CodeEn = "MATH-101"
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	detail, err := svc.Create(context.Background(), sectionRequest())
	require.NoError(t, err)
	assert.Equal(t, "MATH-101-A-2026-B1", detail.ReferenceCode)
}

func TestCreateSectionDuplicateOffering(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	_, err := svc.Create(context.Background(), sectionRequest())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), sectionRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateSectionGuards(t *testing.T) {
	t.Run("deactivated course", func(t *testing.T) {
		repo, courses, periods, professors := sectionFixture()
		courses.courses["crs-1"].Active = false
		svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

		_, err := svc.Create(context.Background(), sectionRequest())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	})

	t.Run("closed period", func(t *testing.T) {
		repo, courses, periods, professors := sectionFixture()
		periods.periods["per-1"].Status = models.PeriodStatusClosed
		svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

		_, err := svc.Create(context.Background(), sectionRequest())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	})

	t.Run("not a professor", func(t *testing.T) {
		repo, courses, periods, professors := sectionFixture()
		professors.users["prof-1"].Role = models.RoleStudent
		svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

		_, err := svc.Create(context.Background(), sectionRequest())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})

	t.Run("inactive professor", func(t *testing.T) {
		repo, courses, periods, professors := sectionFixture()
		professors.users["prof-1"].Active = false
		svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

		_, err := svc.Create(context.Background(), sectionRequest())
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
	})
}

func TestUpdateSectionCapacityBelowEnrolled(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	repo.sections["sec-1"] = &models.Section{ID: "sec-1", Enrolled: 25, Capacity: 30}
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	_, err := svc.Update(context.Background(), "sec-1", UpdateSectionRequest{
		ProfessorID: "prof-1",
		Capacity:    20,
		Delivery:    models.DeliveryOnline,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "25")
}

func TestUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		from    models.SectionStatus
		to      models.SectionStatus
		allowed bool
	}{
		{models.SectionStatusDraft, models.SectionStatusOpen, true},
		{models.SectionStatusDraft, models.SectionStatusActive, false},
		{models.SectionStatusOpen, models.SectionStatusClosed, true},
		{models.SectionStatusOpen, models.SectionStatusActive, true},
		{models.SectionStatusClosed, models.SectionStatusOpen, true},
		{models.SectionStatusActive, models.SectionStatusGrading, true},
		{models.SectionStatusActive, models.SectionStatusOpen, false},
		{models.SectionStatusCompleted, models.SectionStatusOpen, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s to %s", tc.from, tc.to), func(t *testing.T) {
			repo, courses, periods, professors := sectionFixture()
			repo.sections["sec-1"] = &models.Section{ID: "sec-1", Status: tc.from}
			svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

			_, err := svc.UpdateStatus(context.Background(), "sec-1", tc.to)
			if tc.allowed {
				require.NoError(t, err)
				assert.Equal(t, tc.to, repo.sections["sec-1"].Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
			}
		})
	}
}

func TestCompleteRequiresSubmittedGrades(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	repo.sections["sec-1"] = &models.Section{ID: "sec-1", Status: models.SectionStatusGrading}
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), "sec-1", models.SectionStatusCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	_, err = svc.SubmitGrades(context.Background(), "sec-1")
	require.NoError(t, err)

	detail, err := svc.UpdateStatus(context.Background(), "sec-1", models.SectionStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.SectionStatusCompleted, detail.Status)
}

func TestSubmitGradesRequiresGradingStatus(t *testing.T) {
	repo, courses, periods, professors := sectionFixture()
	repo.sections["sec-1"] = &models.Section{ID: "sec-1", Status: models.SectionStatusOpen}
	svc := NewSectionService(repo, courses, periods, professors, nil, nil, nil)

	_, err := svc.SubmitGrades(context.Background(), "sec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
