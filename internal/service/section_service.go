package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	ExistsReferenceCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
	UpdateStatus(ctx context.Context, id string, status models.SectionStatus) error
	SetGradesSubmitted(ctx context.Context, id string, submitted bool) error
	SetActive(ctx context.Context, id string, active bool) error
}

type sectionCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type sectionPeriodReader interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
}

type sectionProfessorReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// sectionTransitions lists the allowed successors per section status.
var sectionTransitions = map[models.SectionStatus][]models.SectionStatus{
	models.SectionStatusDraft:   {models.SectionStatusOpen},
	models.SectionStatusOpen:    {models.SectionStatusClosed, models.SectionStatusActive},
	models.SectionStatusClosed:  {models.SectionStatusOpen, models.SectionStatusActive},
	models.SectionStatusActive:  {models.SectionStatusGrading},
	models.SectionStatusGrading: {models.SectionStatusCompleted},
}

// CreateSectionRequest describes payload for creating sections.
type CreateSectionRequest struct {
	CourseID         string                `json:"course_id" validate:"required"`
	PeriodID         string                `json:"period_id" validate:"required"`
	ProfessorID      string                `json:"professor_id" validate:"required"`
	GroupNumber      string                `json:"group_number" validate:"required"`
	Capacity         int                   `json:"capacity" validate:"required,min=1"`
	WaitlistCapacity *int                  `json:"waitlist_capacity"`
	Delivery         models.DeliveryMethod `json:"delivery" validate:"required,oneof=IN_PERSON ONLINE HYBRID"`
	Schedule         *string               `json:"schedule"`
}

// UpdateSectionRequest updates mutable section fields. The seat counters
// are deliberately absent: only the enrollment path moves them.
type UpdateSectionRequest struct {
	ProfessorID      string                `json:"professor_id" validate:"required"`
	Capacity         int                   `json:"capacity" validate:"required,min=1"`
	WaitlistCapacity *int                  `json:"waitlist_capacity"`
	Delivery         models.DeliveryMethod `json:"delivery" validate:"required,oneof=IN_PERSON ONLINE HYBRID"`
	Schedule         *string               `json:"schedule"`
}

// SectionService orchestrates section offering workflows.
type SectionService struct {
	repo       sectionRepository
	courses    sectionCourseReader
	periods    sectionPeriodReader
	professors sectionProfessorReader
	cache      *CacheService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSectionService creates a new section service instance.
func NewSectionService(repo sectionRepository, courses sectionCourseReader, periods sectionPeriodReader, professors sectionProfessorReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, courses: courses, periods: periods, professors: professors, cache: cache, validator: validate, logger: logger}
}

// List returns paginated sections with course, period and professor context.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
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
	return sections, pagination, nil
}

// Get returns a section by ID with contextual info.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// Create adds a new section in DRAFT. The reference code is derived from
// course code, group and period code, and must be unique.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot offer a deactivated course")
	}
	period, err := s.periods.FindByID(ctx, req.PeriodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if period.Status == models.PeriodStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot add sections to a closed period")
	}
	professor, err := s.professors.FindByID(ctx, req.ProfessorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	if professor.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not a professor")
	}
	if !professor.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "professor account inactive")
	}

	courseCode := course.CodeEs
	if courseCode == "" {
		courseCode = course.CodeEn
	}
	group := strings.ToUpper(strings.TrimSpace(req.GroupNumber))
	referenceCode := fmt.Sprintf("%s-%s-%s", courseCode, group, period.Code)

	exists, err := s.repo.ExistsReferenceCode(ctx, referenceCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a section with this course, group and period already exists")
	}

	section := &models.Section{
		CourseID:         course.ID,
		PeriodID:         period.ID,
		ProfessorID:      professor.ID,
		GroupNumber:      group,
		ReferenceCode:    referenceCode,
		Capacity:         req.Capacity,
		WaitlistCapacity: req.WaitlistCapacity,
		Delivery:         req.Delivery,
		Schedule:         req.Schedule,
		Status:           models.SectionStatusDraft,
		Active:           true,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	s.invalidate(ctx)
	return s.Get(ctx, section.ID)
}

// Update modifies mutable section fields. Capacity may not drop below the
// current enrolled count.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if req.Capacity < section.Enrolled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("capacity cannot drop below the %d students already enrolled", section.Enrolled))
	}

	professor, err := s.professors.FindByID(ctx, req.ProfessorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "professor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load professor")
	}
	if professor.Role != models.RoleProfessor {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not a professor")
	}

	section.ProfessorID = professor.ID
	section.Capacity = req.Capacity
	section.WaitlistCapacity = req.WaitlistCapacity
	section.Delivery = req.Delivery
	section.Schedule = req.Schedule

	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// UpdateStatus moves the section through its lifecycle.
func (s *SectionService) UpdateStatus(ctx context.Context, id string, status models.SectionStatus) (*models.SectionDetail, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	allowed := false
	for _, next := range sectionTransitions[section.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("cannot move section from %s to %s", section.Status, status))
	}
	if status == models.SectionStatusCompleted && !section.GradesSubmitted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "grades must be submitted before completing the section")
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section status")
	}
	s.logger.Info("section status changed", zap.String("section_id", id), zap.String("status", string(status)))
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// SubmitGrades marks the section's grade sheet as turned in.
func (s *SectionService) SubmitGrades(ctx context.Context, id string) (*models.SectionDetail, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.Status != models.SectionStatusGrading {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "section is not in grading")
	}
	if err := s.repo.SetGradesSubmitted(ctx, id, true); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit grades")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// SetActive toggles soft deletion. Deactivated sections refuse new
// enrollments but keep existing ones.
func (s *SectionService) SetActive(ctx context.Context, id string, active bool) (*models.SectionDetail, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section state")
	}
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

func (s *SectionService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, "sections")
	}
}
