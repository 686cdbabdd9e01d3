package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

// gradeBand maps a minimum percentage to a letter and its point value. The
// table is ordered descending and gap-free: the first band whose Min the
// percentage reaches wins.
type gradeBand struct {
	Min    float64
	Letter string
	Points float64
}

var gradeBands = []gradeBand{
	{Min: 90, Letter: "A", Points: 4.0},
	{Min: 80, Letter: "B", Points: 3.0},
	{Min: 70, Letter: "C", Points: 2.0},
	{Min: 60, Letter: "D", Points: 1.0},
	{Min: 0, Letter: "F", Points: 0.0},
}

// DerivedGrade is the full derived output of one grading pass.
type DerivedGrade struct {
	Percentage    float64 `json:"percentage"`
	LetterGrade   string  `json:"letter_grade"`
	GradePoints   float64 `json:"grade_points"`
	QualityPoints float64 `json:"quality_points"`
}

// DeriveGrade maps a raw percentage to letter grade, grade points and
// quality points for the given credit weight. Deterministic and pure.
func DeriveGrade(percentage float64, courseCredits int) (DerivedGrade, error) {
	if math.IsNaN(percentage) || math.IsInf(percentage, 0) || percentage < 0 || percentage > 100 {
		return DerivedGrade{}, appErrors.ErrGradeOutOfRange
	}
	for _, band := range gradeBands {
		if percentage >= band.Min {
			return DerivedGrade{
				Percentage:    percentage,
				LetterGrade:   band.Letter,
				GradePoints:   band.Points,
				QualityPoints: band.Points * float64(courseCredits),
			}, nil
		}
	}
	// unreachable: the last band has Min 0
	return DerivedGrade{}, appErrors.ErrGradeOutOfRange
}

// ValidPercentage reports whether the raw value is a finite number in [0,100].
func ValidPercentage(percentage float64) bool {
	return !math.IsNaN(percentage) && !math.IsInf(percentage, 0) && percentage >= 0 && percentage <= 100
}

type gradeEnrollmentRepo interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	SetGrade(ctx context.Context, id string, percentage, points, quality float64, letter, gradedBy string, gradedAt time.Time) error
}

type gradeCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// SetGradeRequest carries one grading mutation.
type SetGradeRequest struct {
	PercentageGrade float64 `json:"percentage_grade" validate:"min=0,max=100"`
}

// GradeService applies the derivation pipeline to enrollments.
type GradeService struct {
	enrollments gradeEnrollmentRepo
	courses     gradeCourseReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(enrollments gradeEnrollmentRepo, courses gradeCourseReader, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{enrollments: enrollments, courses: courses, validator: validate, logger: logger}
}

// SetGrade validates the percentage, derives the letter grade, grade points
// and quality points from the course credit weight and replaces all three
// derived fields in one write, stamping the grading audit columns.
func (s *GradeService) SetGrade(ctx context.Context, enrollmentID, gradedBy string, req SetGradeRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !ValidPercentage(req.PercentageGrade) {
		return nil, appErrors.Clone(appErrors.ErrGradeOutOfRange, "")
	}

	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	derived, err := DeriveGrade(req.PercentageGrade, course.Credits)
	if err != nil {
		return nil, err
	}

	gradedAt := time.Now().UTC()
	if err := s.enrollments.SetGrade(ctx, enrollmentID, derived.Percentage, derived.GradePoints, derived.QualityPoints, derived.LetterGrade, gradedBy, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grade")
	}

	s.logger.Info("grade recorded",
		zap.String("enrollment_id", enrollmentID),
		zap.Float64("percentage", derived.Percentage),
		zap.String("letter", derived.LetterGrade),
		zap.String("graded_by", gradedBy),
	)

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}
