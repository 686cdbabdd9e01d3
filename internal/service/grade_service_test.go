package service

import (
	"context"
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

func TestDeriveGradeBands(t *testing.T) {
	cases := []struct {
		percentage float64
		letter     string
		points     float64
	}{
		{100, "A", 4.0},
		{90, "A", 4.0},
		{89.99, "B", 3.0},
		{80, "B", 3.0},
		{79.5, "C", 2.0},
		{70, "C", 2.0},
		{69, "D", 1.0},
		{60, "D", 1.0},
		{59.99, "F", 0.0},
		{0, "F", 0.0},
	}
	for _, tc := range cases {
		derived, err := DeriveGrade(tc.percentage, 3)
		require.NoError(t, err, "percentage %v", tc.percentage)
		assert.Equal(t, tc.letter, derived.LetterGrade, "percentage %v", tc.percentage)
		assert.Equal(t, tc.points, derived.GradePoints, "percentage %v", tc.percentage)
		assert.Equal(t, tc.points*3, derived.QualityPoints, "percentage %v", tc.percentage)
	}
}

func TestDeriveGradeQualityScalesWithCredits(t *testing.T) {
	derived, err := DeriveGrade(85, 5)
	require.NoError(t, err)
	assert.Equal(t, 15.0, derived.QualityPoints)

	derived, err = DeriveGrade(85, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, derived.QualityPoints)
}

func TestDeriveGradeRejectsInvalidInput(t *testing.T) {
	for _, percentage := range []float64{-0.01, 100.01, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := DeriveGrade(percentage, 3)
		require.Error(t, err, "percentage %v", percentage)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrGradeOutOfRange.Code, appErr.Code)
	}
}

type mockGradeEnrollmentRepo struct {
	enrollments map[string]*models.Enrollment
	details     map[string]*models.EnrollmentDetail
	lastGrade   struct {
		id         string
		percentage float64
		points     float64
		quality    float64
		letter     string
		gradedBy   string
	}
}

func (m *mockGradeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeEnrollmentRepo) SetGrade(ctx context.Context, id string, percentage, points, quality float64, letter, gradedBy string, gradedAt time.Time) error {
	m.lastGrade.id = id
	m.lastGrade.percentage = percentage
	m.lastGrade.points = points
	m.lastGrade.quality = quality
	m.lastGrade.letter = letter
	m.lastGrade.gradedBy = gradedBy
	return nil
}

type mockGradeCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockGradeCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func TestSetGradeReplacesDerivedFields(t *testing.T) {
	repo := &mockGradeEnrollmentRepo{
		enrollments: map[string]*models.Enrollment{
			"enr-1": {ID: "enr-1", CourseID: "crs-1"},
		},
		details: map[string]*models.EnrollmentDetail{
			"enr-1": {Enrollment: models.Enrollment{ID: "enr-1"}},
		},
	}
	courses := &mockGradeCourseReader{
		courses: map[string]*models.Course{
			"crs-1": {ID: "crs-1", Credits: 4},
		},
	}
	svc := NewGradeService(repo, courses, nil, nil)

	detail, err := svc.SetGrade(context.Background(), "enr-1", "prof-1", SetGradeRequest{PercentageGrade: 92.5})
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, "enr-1", repo.lastGrade.id)
	assert.Equal(t, 92.5, repo.lastGrade.percentage)
	assert.Equal(t, "A", repo.lastGrade.letter)
	assert.Equal(t, 4.0, repo.lastGrade.points)
	assert.Equal(t, 16.0, repo.lastGrade.quality)
	assert.Equal(t, "prof-1", repo.lastGrade.gradedBy)
}

func TestSetGradeUnknownEnrollment(t *testing.T) {
	svc := NewGradeService(&mockGradeEnrollmentRepo{}, &mockGradeCourseReader{}, nil, nil)

	_, err := svc.SetGrade(context.Background(), "missing", "prof-1", SetGradeRequest{PercentageGrade: 70})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSetGradeRejectsOutOfRange(t *testing.T) {
	svc := NewGradeService(&mockGradeEnrollmentRepo{}, &mockGradeCourseReader{}, nil, nil)

	_, err := svc.SetGrade(context.Background(), "enr-1", "prof-1", SetGradeRequest{PercentageGrade: 120})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
