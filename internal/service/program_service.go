package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	ExistsCode(ctx context.Context, codeEs, codeEn, excludeID string) (bool, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	SetActive(ctx context.Context, id string, active bool) error
	ListAssociations(ctx context.Context, programID string) ([]models.ProgramCourseDetail, error)
	FindAssociation(ctx context.Context, id string) (*models.ProgramCourse, error)
	ExistsAssociation(ctx context.Context, programID, courseID string) (bool, error)
	CreateAssociation(ctx context.Context, association *models.ProgramCourse) error
	UpdateAssociation(ctx context.Context, association *models.ProgramCourse) error
	DeleteAssociation(ctx context.Context, id string) error
}

type programCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateProgramRequest describes payload for creating programs.
type CreateProgramRequest struct {
	CodeEs          string              `json:"code_es"`
	CodeEn          string              `json:"code_en"`
	NameEs          string              `json:"name_es"`
	NameEn          string              `json:"name_en"`
	DescriptionEs   *string             `json:"description_es"`
	DescriptionEn   *string             `json:"description_en"`
	Type            models.ProgramType  `json:"type" validate:"required,oneof=DIPLOMA BACHELOR MASTER DOCTORATE"`
	LanguageMode    models.LanguageMode `json:"language_mode" validate:"required,oneof=ES EN BOTH"`
	DurationPeriods int                 `json:"duration_periods" validate:"required,min=1"`
}

// UpdateProgramRequest updates mutable program fields. The derived credit
// total is deliberately absent.
type UpdateProgramRequest struct {
	CodeEs          string              `json:"code_es"`
	CodeEn          string              `json:"code_en"`
	NameEs          string              `json:"name_es"`
	NameEn          string              `json:"name_en"`
	DescriptionEs   *string             `json:"description_es"`
	DescriptionEn   *string             `json:"description_en"`
	Type            models.ProgramType  `json:"type" validate:"required,oneof=DIPLOMA BACHELOR MASTER DOCTORATE"`
	LanguageMode    models.LanguageMode `json:"language_mode" validate:"required,oneof=ES EN BOTH"`
	DurationPeriods int                 `json:"duration_periods" validate:"required,min=1"`
}

// AttachCourseRequest links a course into a program's curriculum.
type AttachCourseRequest struct {
	CourseID         string                 `json:"course_id" validate:"required"`
	IsRequired       bool                   `json:"is_required"`
	CategoryOverride *models.CourseCategory `json:"category_override"`
}

// UpdateAssociationRequest updates an existing curriculum link.
type UpdateAssociationRequest struct {
	IsRequired       bool                   `json:"is_required"`
	CategoryOverride *models.CourseCategory `json:"category_override"`
	Active           bool                   `json:"active"`
}

// ProgramService orchestrates program and curriculum workflows. Every
// association mutation schedules a deferred credit recompute for the program.
type ProgramService struct {
	repo      programRepository
	courses   programCourseReader
	credits   *CreditService
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProgramService creates a new program service instance.
func NewProgramService(repo programRepository, courses programCourseReader, credits *CreditService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, courses: courses, credits: credits, cache: cache, validator: validate, logger: logger}
}

// bilingualFieldsValid checks that the codes and names required by the
// language mode are present.
func bilingualFieldsValid(mode models.LanguageMode, codeEs, nameEs, codeEn, nameEn string) error {
	needsEs := mode == models.LanguageModeSpanish || mode == models.LanguageModeBoth
	needsEn := mode == models.LanguageModeEnglish || mode == models.LanguageModeBoth
	if needsEs && (strings.TrimSpace(codeEs) == "" || strings.TrimSpace(nameEs) == "") {
		return appErrors.Clone(appErrors.ErrValidation, "code_es and name_es are required for this language mode")
	}
	if needsEn && (strings.TrimSpace(codeEn) == "" || strings.TrimSpace(nameEn) == "") {
		return appErrors.Clone(appErrors.ErrValidation, "code_en and name_en are required for this language mode")
	}
	return nil
}

// List returns paginated programs, served from cache when possible.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return programs, pagination, nil
}

// Get returns a program by ID, through the cache when enabled.
func (s *ProgramService) Get(ctx context.Context, id string) (*models.Program, error) {
	if s.cache != nil {
		var cached models.Program
		if s.cache.Get(ctx, s.cache.Key("programs", id), &cached) {
			return &cached, nil
		}
	}
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if s.cache != nil {
		s.cache.Set(ctx, s.cache.Key("programs", id), program, 0)
	}
	return program, nil
}

// Create adds a new program ensuring code uniqueness across both languages.
func (s *ProgramService) Create(ctx context.Context, req CreateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	if err := bilingualFieldsValid(req.LanguageMode, req.CodeEs, req.NameEs, req.CodeEn, req.NameEn); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsCode(ctx, req.CodeEs, req.CodeEn, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "program code already in use")
	}

	program := &models.Program{
		CodeEs:          strings.ToUpper(strings.TrimSpace(req.CodeEs)),
		CodeEn:          strings.ToUpper(strings.TrimSpace(req.CodeEn)),
		NameEs:          strings.TrimSpace(req.NameEs),
		NameEn:          strings.TrimSpace(req.NameEn),
		DescriptionEs:   req.DescriptionEs,
		DescriptionEn:   req.DescriptionEn,
		Type:            req.Type,
		LanguageMode:    req.LanguageMode,
		DurationPeriods: req.DurationPeriods,
		Active:          true,
	}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	s.invalidate(ctx)
	return program, nil
}

// Update modifies mutable program fields. TotalCredits stays derived: only
// the recompute pipeline writes it.
func (s *ProgramService) Update(ctx context.Context, id string, req UpdateProgramRequest) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	if err := bilingualFieldsValid(req.LanguageMode, req.CodeEs, req.NameEs, req.CodeEn, req.NameEn); err != nil {
		return nil, err
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	exists, err := s.repo.ExistsCode(ctx, req.CodeEs, req.CodeEn, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "program code already in use")
	}

	program.CodeEs = strings.ToUpper(strings.TrimSpace(req.CodeEs))
	program.CodeEn = strings.ToUpper(strings.TrimSpace(req.CodeEn))
	program.NameEs = strings.TrimSpace(req.NameEs)
	program.NameEn = strings.TrimSpace(req.NameEn)
	program.DescriptionEs = req.DescriptionEs
	program.DescriptionEn = req.DescriptionEn
	program.Type = req.Type
	program.LanguageMode = req.LanguageMode
	program.DurationPeriods = req.DurationPeriods

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	s.invalidate(ctx)
	return program, nil
}

// SetActive toggles soft deletion. Deactivation hides the program from
// default listings; history stays intact.
func (s *ProgramService) SetActive(ctx context.Context, id string, active bool) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program state")
	}
	program.Active = active
	s.invalidate(ctx)
	return program, nil
}

// ListCourses returns the program's curriculum with course details.
func (s *ProgramService) ListCourses(ctx context.Context, programID string) ([]models.ProgramCourseDetail, error) {
	if _, err := s.Get(ctx, programID); err != nil {
		return nil, err
	}
	associations, err := s.repo.ListAssociations(ctx, programID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program courses")
	}
	return associations, nil
}

// AttachCourse links a course into the curriculum and schedules a credit
// recompute for the program.
func (s *ProgramService) AttachCourse(ctx context.Context, programID string, req AttachCourseRequest) (*models.ProgramCourse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid association payload")
	}

	if _, err := s.Get(ctx, programID); err != nil {
		return nil, err
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.ExistsAssociation(ctx, programID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check association uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already associated with program")
	}

	association := &models.ProgramCourse{
		ProgramID:        programID,
		CourseID:         course.ID,
		IsRequired:       req.IsRequired,
		CategoryOverride: req.CategoryOverride,
		Active:           true,
	}
	if err := s.repo.CreateAssociation(ctx, association); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach course")
	}

	s.invalidate(ctx)
	if s.credits != nil {
		s.credits.Schedule(programID)
	}
	return association, nil
}

// UpdateCourseAssociation changes the link's flags. Toggling Active changes
// whether the course counts toward the program total, so a recompute is
// scheduled either way.
func (s *ProgramService) UpdateCourseAssociation(ctx context.Context, programID, associationID string, req UpdateAssociationRequest) (*models.ProgramCourse, error) {
	association, err := s.repo.FindAssociation(ctx, associationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "association not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load association")
	}
	if association.ProgramID != programID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "association not found")
	}

	association.IsRequired = req.IsRequired
	association.CategoryOverride = req.CategoryOverride
	association.Active = req.Active

	if err := s.repo.UpdateAssociation(ctx, association); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update association")
	}

	s.invalidate(ctx)
	if s.credits != nil {
		s.credits.Schedule(programID)
	}
	return association, nil
}

// DetachCourse removes the curriculum link and schedules a credit recompute.
func (s *ProgramService) DetachCourse(ctx context.Context, programID, associationID string) error {
	association, err := s.repo.FindAssociation(ctx, associationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "association not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load association")
	}
	if association.ProgramID != programID {
		return appErrors.Clone(appErrors.ErrNotFound, "association not found")
	}

	if err := s.repo.DeleteAssociation(ctx, associationID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach course")
	}

	s.invalidate(ctx)
	if s.credits != nil {
		s.credits.Schedule(programID)
	}
	return nil
}

// RecomputeCredits forces a synchronous recompute, for callers that need the
// fresh total immediately.
func (s *ProgramService) RecomputeCredits(ctx context.Context, programID string) (int, error) {
	if _, err := s.Get(ctx, programID); err != nil {
		return 0, err
	}
	if s.credits == nil {
		return 0, appErrors.Clone(appErrors.ErrInternal, "credit service unavailable")
	}
	total, err := s.credits.Recompute(ctx, programID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute credits")
	}
	s.invalidate(ctx)
	return total, nil
}

func (s *ProgramService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, "programs")
	}
}
