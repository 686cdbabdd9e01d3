package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type periodRepository interface {
	List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, int, error)
	FindByID(ctx context.Context, id string) (*models.Period, error)
	FindCurrent(ctx context.Context) (*models.Period, error)
	ExistsCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, period *models.Period) error
	Update(ctx context.Context, period *models.Period) error
	SetCurrent(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// periodTransitions lists the single allowed successor for each lifecycle
// status. The lifecycle only moves forward.
var periodTransitions = map[models.PeriodStatus]models.PeriodStatus{
	models.PeriodStatusPlanning:   models.PeriodStatusEnrollment,
	models.PeriodStatusEnrollment: models.PeriodStatusActive,
	models.PeriodStatusActive:     models.PeriodStatusGrading,
	models.PeriodStatusGrading:    models.PeriodStatusClosed,
}

// CreatePeriodRequest describes payload for creating academic periods.
type CreatePeriodRequest struct {
	Code            string    `json:"code" validate:"required"`
	Name            string    `json:"name" validate:"required"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required"`
	EnrollmentStart time.Time `json:"enrollment_start" validate:"required"`
	EnrollmentEnd   time.Time `json:"enrollment_end" validate:"required"`
	GradingDeadline time.Time `json:"grading_deadline" validate:"required"`
}

// UpdatePeriodRequest updates mutable fields on a period. IsCurrent is
// deliberately absent: the singleton only changes through SetCurrent.
type UpdatePeriodRequest struct {
	Code            string    `json:"code" validate:"required"`
	Name            string    `json:"name" validate:"required"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required"`
	EnrollmentStart time.Time `json:"enrollment_start" validate:"required"`
	EnrollmentEnd   time.Time `json:"enrollment_end" validate:"required"`
	GradingDeadline time.Time `json:"grading_deadline" validate:"required"`
}

// PeriodService orchestrates academic period workflows.
type PeriodService struct {
	repo      periodRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService creates a new period service instance.
func NewPeriodService(repo periodRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, cache: cache, validator: validate, logger: logger}
}

func validatePeriodDates(start, end, enrollStart, enrollEnd, gradingDeadline time.Time) error {
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	if !enrollStart.Before(enrollEnd) {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment_start must be before enrollment_end")
	}
	if gradingDeadline.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "grading_deadline must not precede end_date")
	}
	return nil
}

// List returns paginated periods.
func (s *PeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, *models.Pagination, error) {
	periods, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
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
	return periods, pagination, nil
}

// Get returns a period by ID.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

// GetCurrent returns the period currently flagged as the institution's
// working period.
func (s *PeriodService) GetCurrent(ctx context.Context) (*models.Period, error) {
	if s.cache != nil {
		var cached models.Period
		if s.cache.Get(ctx, s.cache.Key("periods", "current"), &cached) {
			return &cached, nil
		}
	}
	period, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current period set")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current period")
	}
	if s.cache != nil {
		s.cache.Set(ctx, s.cache.Key("periods", "current"), period, 0)
	}
	return period, nil
}

// Create adds a new period in PLANNING status.
func (s *PeriodService) Create(ctx context.Context, req CreatePeriodRequest) (*models.Period, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if err := validatePeriodDates(req.StartDate, req.EndDate, req.EnrollmentStart, req.EnrollmentEnd, req.GradingDeadline); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check period code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "period code already in use")
	}

	period := &models.Period{
		Code:            strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:            strings.TrimSpace(req.Name),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		EnrollmentStart: req.EnrollmentStart,
		EnrollmentEnd:   req.EnrollmentEnd,
		GradingDeadline: req.GradingDeadline,
		Status:          models.PeriodStatusPlanning,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	s.invalidate(ctx)
	return period, nil
}

// Update modifies a period's descriptive fields and dates.
func (s *PeriodService) Update(ctx context.Context, id string, req UpdatePeriodRequest) (*models.Period, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if err := validatePeriodDates(req.StartDate, req.EndDate, req.EnrollmentStart, req.EnrollmentEnd, req.GradingDeadline); err != nil {
		return nil, err
	}

	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if period.Status == models.PeriodStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "closed periods are immutable")
	}

	exists, err := s.repo.ExistsCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check period code uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "period code already in use")
	}

	period.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	period.Name = strings.TrimSpace(req.Name)
	period.StartDate = req.StartDate
	period.EndDate = req.EndDate
	period.EnrollmentStart = req.EnrollmentStart
	period.EnrollmentEnd = req.EnrollmentEnd
	period.GradingDeadline = req.GradingDeadline

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update period")
	}
	s.invalidate(ctx)
	return period, nil
}

// Advance moves the period one step forward in its lifecycle.
func (s *PeriodService) Advance(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}

	next, ok := periodTransitions[period.Status]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "period lifecycle is already closed")
	}
	period.Status = next

	if err := s.repo.Update(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance period")
	}
	s.logger.Info("period advanced", zap.String("period_id", id), zap.String("status", string(next)))
	s.invalidate(ctx)
	return period, nil
}

// SetCurrent designates the period as the institution's current one. The
// repository clears the flag from every other period in the same
// transaction, preserving the singleton.
func (s *PeriodService) SetCurrent(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if period.Status == models.PeriodStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "closed period cannot be current")
	}

	if err := s.repo.SetCurrent(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set current period")
	}
	period.IsCurrent = true
	s.invalidate(ctx)
	return period, nil
}

// Delete removes a period that never left planning and is not current.
func (s *PeriodService) Delete(ctx context.Context, id string) error {
	period, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	if period.IsCurrent {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete the current period")
	}
	if period.Status != models.PeriodStatusPlanning {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "only periods still in planning can be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete period")
	}
	s.invalidate(ctx)
	return nil
}

func (s *PeriodService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, "periods")
	}
}
