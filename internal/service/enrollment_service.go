package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	"github.com/campuskit/academics-api/internal/repository"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error)
	CreateCounted(ctx context.Context, enrollment *models.Enrollment, opts repository.CreateOptions) error
	DeleteCounted(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// EnrollRequest describes enrollment creation.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	// Auditing enrollments never occupy a seat and skip the capacity check.
	Auditing bool `json:"auditing"`
}

// ForceEnrollRequest is the administrative override path.
type ForceEnrollRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	SectionID      string `json:"section_id" validate:"required"`
	BypassCapacity bool   `json:"bypass_capacity"`
	BypassStatus   bool   `json:"bypass_status"`
}

// EnrollResult pairs the created enrollment with any bypass warnings.
type EnrollResult struct {
	Enrollment *models.EnrollmentDetail `json:"enrollment"`
	Warnings   []string                 `json:"warnings,omitempty"`
}

// EnrollmentService orchestrates enrollment workflows and seat accounting.
type EnrollmentService struct {
	repo      enrollmentRepository
	sections  sectionReader
	students  studentReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, sections sectionReader, students studentReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, sections: sections, students: students, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns one enrollment with contextual info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student into a section through the self-service path:
// the section must be active and open, and capacity is enforced.
func (s *EnrollmentService) Enroll(ctx context.Context, actorID string, req EnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	section, student, err := s.loadRefs(ctx, req.SectionID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !section.Active {
		return nil, appErrors.Clone(appErrors.ErrSectionNotOpen, "section is deactivated")
	}
	if section.Status != models.SectionStatusOpen {
		return nil, appErrors.Clone(appErrors.ErrSectionNotOpen, "")
	}

	return s.create(ctx, actorID, student, section, repository.CreateOptions{CountSeat: !req.Auditing}, nil)
}

// ForceEnroll is the administrative path. Status and capacity may be
// bypassed; the seat counter still increments and every bypass is both
// logged and surfaced as a warning on the result.
func (s *EnrollmentService) ForceEnroll(ctx context.Context, actorID string, req ForceEnrollRequest) (*EnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	section, student, err := s.loadRefs(ctx, req.SectionID, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !section.Active {
		return nil, appErrors.Clone(appErrors.ErrSectionNotOpen, "section is deactivated")
	}

	var warnings []string
	if section.Status != models.SectionStatusOpen {
		if !req.BypassStatus {
			return nil, appErrors.Clone(appErrors.ErrSectionNotOpen, "")
		}
		warnings = append(warnings, "Section status bypassed")
		s.logger.Warn("section status bypassed",
			zap.String("section_id", section.ID),
			zap.String("status", string(section.Status)),
			zap.String("actor_id", actorID),
		)
	}
	if req.BypassCapacity && section.Enrolled >= section.Capacity {
		warnings = append(warnings, "Capacity limit bypassed")
		s.logger.Warn("capacity limit bypassed",
			zap.String("section_id", section.ID),
			zap.Int("enrolled", section.Enrolled),
			zap.Int("capacity", section.Capacity),
			zap.String("actor_id", actorID),
		)
	}

	opts := repository.CreateOptions{CountSeat: true, BypassCapacity: req.BypassCapacity}
	return s.create(ctx, actorID, student, section, opts, warnings)
}

func (s *EnrollmentService) loadRefs(ctx context.Context, sectionID, studentID string) (*models.Section, *models.User, error) {
	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrInactiveAccount, "student account inactive")
	}
	if student.Role != models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	return section, student, nil
}

func (s *EnrollmentService) create(ctx context.Context, actorID string, student *models.User, section *models.Section, opts repository.CreateOptions, warnings []string) (*EnrollResult, error) {
	exists, err := s.repo.ExistsActive(ctx, student.ID, section.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	enrollment := &models.Enrollment{
		StudentID:   student.ID,
		SectionID:   section.ID,
		CourseID:    section.CourseID,
		PeriodID:    section.PeriodID,
		ProfessorID: section.ProfessorID,
		Status:      models.EnrollmentStatusEnrolled,
		EnrolledBy:  actorID,
	}
	if err := s.repo.CreateCounted(ctx, enrollment, opts); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return &EnrollResult{Enrollment: detail, Warnings: warnings}, nil
}

// UpdateStatus moves an enrollment through its lifecycle without touching
// the seat counter: retirement by status is not a physical removal.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) (*models.EnrollmentDetail, error) {
	switch status {
	case models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress, models.EnrollmentStatusCompleted,
		models.EnrollmentStatusFailed, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusDropped,
		models.EnrollmentStatusIncomplete:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Delete physically removes an enrollment and rolls back the seat counter.
// Only the administrative cascade uses this path.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.DeleteCounted(ctx, enrollment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}
