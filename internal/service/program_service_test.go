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

type mockProgramRepo struct {
	programs     map[string]*models.Program
	associations map[string]*models.ProgramCourse
	nextID       int
}

func newMockProgramRepo() *mockProgramRepo {
	return &mockProgramRepo{
		programs:     make(map[string]*models.Program),
		associations: make(map[string]*models.ProgramCourse),
	}
}

func (m *mockProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	return nil, 0, nil
}

func (m *mockProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgramRepo) ExistsCode(ctx context.Context, codeEs, codeEn, excludeID string) (bool, error) {
	for _, p := range m.programs {
		if p.ID == excludeID {
			continue
		}
		if (codeEs != "" && p.CodeEs == normKey(codeEs)) || (codeEn != "" && p.CodeEn == normKey(codeEn)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProgramRepo) Create(ctx context.Context, program *models.Program) error {
	m.nextID++
	program.ID = fmt.Sprintf("prog-%d", m.nextID)
	m.programs[program.ID] = program
	return nil
}

func (m *mockProgramRepo) Update(ctx context.Context, program *models.Program) error {
	m.programs[program.ID] = program
	return nil
}

func (m *mockProgramRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.programs[id].Active = active
	return nil
}

func (m *mockProgramRepo) ListAssociations(ctx context.Context, programID string) ([]models.ProgramCourseDetail, error) {
	var out []models.ProgramCourseDetail
	for _, a := range m.associations {
		if a.ProgramID == programID {
			out = append(out, models.ProgramCourseDetail{ProgramCourse: *a})
		}
	}
	return out, nil
}

func (m *mockProgramRepo) FindAssociation(ctx context.Context, id string) (*models.ProgramCourse, error) {
	if a, ok := m.associations[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgramRepo) ExistsAssociation(ctx context.Context, programID, courseID string) (bool, error) {
	for _, a := range m.associations {
		if a.ProgramID == programID && a.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProgramRepo) CreateAssociation(ctx context.Context, association *models.ProgramCourse) error {
	m.nextID++
	association.ID = fmt.Sprintf("assoc-%d", m.nextID)
	m.associations[association.ID] = association
	return nil
}

func (m *mockProgramRepo) UpdateAssociation(ctx context.Context, association *models.ProgramCourse) error {
	m.associations[association.ID] = association
	return nil
}

func (m *mockProgramRepo) DeleteAssociation(ctx context.Context, id string) error {
	delete(m.associations, id)
	return nil
}

func programRequest() CreateProgramRequest {
	return CreateProgramRequest{
		CodeEs:          "ing-sis",
		NameEs:          "Ingeniería de Sistemas",
		Type:            models.ProgramTypeBachelor,
		LanguageMode:    models.LanguageModeSpanish,
		DurationPeriods: 10,
	}
}

func programServiceFixture() (*ProgramService, *mockProgramRepo, *mockCreditQueue) {
	repo := newMockProgramRepo()
	courses := &mockGradeCourseReader{courses: map[string]*models.Course{
		"crs-1": {ID: "crs-1", Credits: 4, Active: true},
	}}
	queue := &mockCreditQueue{}
	creditRepo := newMockProgramCreditRepo()
	credits := NewCreditService(creditRepo, nil, nil)
	credits.Bind(queue)
	return NewProgramService(repo, courses, credits, nil, nil, nil), repo, queue
}

func TestCreateProgramUppercasesCodes(t *testing.T) {
	svc, _, _ := programServiceFixture()

	program, err := svc.Create(context.Background(), programRequest())
	require.NoError(t, err)

	assert.Equal(t, "ING-SIS", program.CodeEs)
	assert.True(t, program.Active)
	assert.Equal(t, 0, program.TotalCredits)
}

func TestCreateProgramBilingualValidation(t *testing.T) {
	svc, _, _ := programServiceFixture()

	req := programRequest()
	req.LanguageMode = models.LanguageModeBoth
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "code_en")

	req.CodeEn = "SYS-ENG"
	req.NameEn = "Systems Engineering"
	_, err = svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateProgramDuplicateCode(t *testing.T) {
	svc, _, _ := programServiceFixture()

	_, err := svc.Create(context.Background(), programRequest())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), programRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAttachCourseSchedulesRecompute(t *testing.T) {
	svc, repo, queue := programServiceFixture()
	repo.programs["prog-1"] = &models.Program{ID: "prog-1", Active: true}

	association, err := svc.AttachCourse(context.Background(), "prog-1", AttachCourseRequest{CourseID: "crs-1", IsRequired: true})
	require.NoError(t, err)

	assert.True(t, association.Active)
	assert.True(t, association.IsRequired)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, "prog-1", queue.tasks[0].Payload)
}

func TestAttachCourseDuplicate(t *testing.T) {
	svc, repo, _ := programServiceFixture()
	repo.programs["prog-1"] = &models.Program{ID: "prog-1", Active: true}

	_, err := svc.AttachCourse(context.Background(), "prog-1", AttachCourseRequest{CourseID: "crs-1"})
	require.NoError(t, err)

	_, err = svc.AttachCourse(context.Background(), "prog-1", AttachCourseRequest{CourseID: "crs-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUpdateAssociationOwnershipCheck(t *testing.T) {
	svc, repo, _ := programServiceFixture()
	repo.programs["prog-1"] = &models.Program{ID: "prog-1", Active: true}
	repo.associations["assoc-1"] = &models.ProgramCourse{ID: "assoc-1", ProgramID: "other-program", CourseID: "crs-1"}

	_, err := svc.UpdateCourseAssociation(context.Background(), "prog-1", "assoc-1", UpdateAssociationRequest{Active: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDetachCourseSchedulesRecompute(t *testing.T) {
	svc, repo, queue := programServiceFixture()
	repo.programs["prog-1"] = &models.Program{ID: "prog-1", Active: true}
	repo.associations["assoc-1"] = &models.ProgramCourse{ID: "assoc-1", ProgramID: "prog-1", CourseID: "crs-1"}

	require.NoError(t, svc.DetachCourse(context.Background(), "prog-1", "assoc-1"))
	assert.Empty(t, repo.associations)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, "prog-1", queue.tasks[0].Payload)
}

func TestRecomputeCreditsSynchronous(t *testing.T) {
	repo := newMockProgramRepo()
	repo.programs["prog-1"] = &models.Program{ID: "prog-1", Active: true}
	creditRepo := newMockProgramCreditRepo()
	creditRepo.sums["prog-1"] = 24
	credits := NewCreditService(creditRepo, nil, nil)
	svc := NewProgramService(repo, &mockGradeCourseReader{}, credits, nil, nil, nil)

	total, err := svc.RecomputeCredits(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 24, total)
	assert.Equal(t, 24, creditRepo.stored["prog-1"])
}
