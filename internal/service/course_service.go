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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsCode(ctx context.Context, codeEs, codeEn, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetActive(ctx context.Context, id string, active bool) error
}

// CreateCourseRequest describes payload for creating courses.
type CreateCourseRequest struct {
	CodeEs        string                `json:"code_es"`
	CodeEn        string                `json:"code_en"`
	NameEs        string                `json:"name_es"`
	NameEn        string                `json:"name_en"`
	DescriptionEs *string               `json:"description_es"`
	DescriptionEn *string               `json:"description_en"`
	Credits       int                   `json:"credits" validate:"required,min=1,max=12"`
	Category      models.CourseCategory `json:"category" validate:"required,oneof=HUMANITIES CORE ELECTIVE GENERAL"`
	LanguageMode  models.LanguageMode   `json:"language_mode" validate:"required,oneof=ES EN BOTH"`
}

// UpdateCourseRequest updates mutable course fields.
type UpdateCourseRequest struct {
	CodeEs        string                `json:"code_es"`
	CodeEn        string                `json:"code_en"`
	NameEs        string                `json:"name_es"`
	NameEn        string                `json:"name_en"`
	DescriptionEs *string               `json:"description_es"`
	DescriptionEn *string               `json:"description_en"`
	Credits       int                   `json:"credits" validate:"required,min=1,max=12"`
	Category      models.CourseCategory `json:"category" validate:"required,oneof=HUMANITIES CORE ELECTIVE GENERAL"`
	LanguageMode  models.LanguageMode   `json:"language_mode" validate:"required,oneof=ES EN BOTH"`
}

// CourseService orchestrates course catalog workflows. Credit changes fan
// out deferred recomputes to every program carrying the course.
type CourseService struct {
	repo      courseRepository
	credits   *CreditService
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates a new course service instance.
func NewCourseService(repo courseRepository, credits *CreditService, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, credits: credits, cache: cache, validator: validate, logger: logger}
}

// List returns paginated courses.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns a course by ID, through the cache when enabled.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if s.cache != nil {
		var cached models.Course
		if s.cache.Get(ctx, s.cache.Key("courses", id), &cached) {
			return &cached, nil
		}
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if s.cache != nil {
		s.cache.Set(ctx, s.cache.Key("courses", id), course, 0)
	}
	return course, nil
}

// Create adds a new course ensuring code uniqueness across both languages.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := bilingualFieldsValid(req.LanguageMode, req.CodeEs, req.NameEs, req.CodeEn, req.NameEn); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsCode(ctx, req.CodeEs, req.CodeEn, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	}

	course := &models.Course{
		CodeEs:        strings.ToUpper(strings.TrimSpace(req.CodeEs)),
		CodeEn:        strings.ToUpper(strings.TrimSpace(req.CodeEn)),
		NameEs:        strings.TrimSpace(req.NameEs),
		NameEn:        strings.TrimSpace(req.NameEn),
		DescriptionEs: req.DescriptionEs,
		DescriptionEn: req.DescriptionEn,
		Credits:       req.Credits,
		Category:      req.Category,
		LanguageMode:  req.LanguageMode,
		Active:        true,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidate(ctx)
	return course, nil
}

// Update modifies a course. A credit value change schedules recomputes for
// every program with an active association to this course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := bilingualFieldsValid(req.LanguageMode, req.CodeEs, req.NameEs, req.CodeEn, req.NameEn); err != nil {
		return nil, err
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.ExistsCode(ctx, req.CodeEs, req.CodeEn, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	}

	creditsChanged := course.Credits != req.Credits

	course.CodeEs = strings.ToUpper(strings.TrimSpace(req.CodeEs))
	course.CodeEn = strings.ToUpper(strings.TrimSpace(req.CodeEn))
	course.NameEs = strings.TrimSpace(req.NameEs)
	course.NameEn = strings.TrimSpace(req.NameEn)
	course.DescriptionEs = req.DescriptionEs
	course.DescriptionEn = req.DescriptionEn
	course.Credits = req.Credits
	course.Category = req.Category
	course.LanguageMode = req.LanguageMode

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidate(ctx)
	if creditsChanged && s.credits != nil {
		s.credits.ScheduleForCourse(ctx, id)
	}
	return course, nil
}

// SetActive toggles soft deletion. The course stops or resumes counting
// toward program totals, so affected programs get a recompute.
func (s *CourseService) SetActive(ctx context.Context, id string, active bool) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course state")
	}
	course.Active = active

	s.invalidate(ctx)
	if s.credits != nil {
		s.credits.ScheduleForCourse(ctx, id)
	}
	return course, nil
}

func (s *CourseService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, "courses")
	}
}
