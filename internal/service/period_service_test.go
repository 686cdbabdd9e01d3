package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type mockPeriodRepo struct {
	periods map[string]*models.Period
	codes   map[string]string // code -> id
	deleted []string
	nextID  int
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{periods: make(map[string]*models.Period), codes: make(map[string]string)}
}

func (m *mockPeriodRepo) List(ctx context.Context, filter models.PeriodFilter) ([]models.Period, int, error) {
	return nil, 0, nil
}

func (m *mockPeriodRepo) FindByID(ctx context.Context, id string) (*models.Period, error) {
	if p, ok := m.periods[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPeriodRepo) FindCurrent(ctx context.Context) (*models.Period, error) {
	for _, p := range m.periods {
		if p.IsCurrent {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPeriodRepo) ExistsCode(ctx context.Context, code, excludeID string) (bool, error) {
	id, ok := m.codes[code]
	return ok && id != excludeID, nil
}

func (m *mockPeriodRepo) Create(ctx context.Context, period *models.Period) error {
	m.nextID++
	period.ID = fmt.Sprintf("per-%d", m.nextID)
	m.periods[period.ID] = period
	m.codes[period.Code] = period.ID
	return nil
}

func (m *mockPeriodRepo) Update(ctx context.Context, period *models.Period) error {
	m.periods[period.ID] = period
	return nil
}

func (m *mockPeriodRepo) SetCurrent(ctx context.Context, id string) error {
	for _, p := range m.periods {
		p.IsCurrent = p.ID == id
	}
	return nil
}

func (m *mockPeriodRepo) Delete(ctx context.Context, id string) error {
	delete(m.periods, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func periodRequest() CreatePeriodRequest {
	start := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	return CreatePeriodRequest{
		Code:            "2026-b1",
		Name:            "Bimestre I 2026",
		StartDate:       start,
		EndDate:         start.AddDate(0, 2, 0),
		EnrollmentStart: start.AddDate(0, 0, -14),
		EnrollmentEnd:   start.AddDate(0, 0, 7),
		GradingDeadline: start.AddDate(0, 2, 7),
	}
}

func TestCreatePeriodStartsInPlanning(t *testing.T) {
	repo := newMockPeriodRepo()
	svc := NewPeriodService(repo, nil, nil, nil)

	period, err := svc.Create(context.Background(), periodRequest())
	require.NoError(t, err)

	assert.Equal(t, models.PeriodStatusPlanning, period.Status)
	assert.Equal(t, "2026-B1", period.Code)
	assert.False(t, period.IsCurrent)
}

func TestCreatePeriodRejectsBadDates(t *testing.T) {
	repo := newMockPeriodRepo()
	svc := NewPeriodService(repo, nil, nil, nil)

	req := periodRequest()
	req.EndDate = req.StartDate.AddDate(0, 0, -1)
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = periodRequest()
	req.GradingDeadline = req.EndDate.AddDate(0, 0, -1)
	_, err = svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreatePeriodDuplicateCode(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.codes["2026-b1"] = "per-existing"
	svc := NewPeriodService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), periodRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAdvanceWalksLifecycle(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.periods["per-1"] = &models.Period{ID: "per-1", Status: models.PeriodStatusPlanning}
	svc := NewPeriodService(repo, nil, nil, nil)

	expected := []models.PeriodStatus{
		models.PeriodStatusEnrollment,
		models.PeriodStatusActive,
		models.PeriodStatusGrading,
		models.PeriodStatusClosed,
	}
	for _, want := range expected {
		period, err := svc.Advance(context.Background(), "per-1")
		require.NoError(t, err)
		assert.Equal(t, want, period.Status)
	}

	_, err := svc.Advance(context.Background(), "per-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestUpdateClosedPeriodImmutable(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.periods["per-1"] = &models.Period{ID: "per-1", Status: models.PeriodStatusClosed}
	svc := NewPeriodService(repo, nil, nil, nil)

	_, err := svc.Update(context.Background(), "per-1", UpdatePeriodRequest(periodRequest()))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSetCurrentMovesSingleton(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.periods["per-1"] = &models.Period{ID: "per-1", Status: models.PeriodStatusActive, IsCurrent: true}
	repo.periods["per-2"] = &models.Period{ID: "per-2", Status: models.PeriodStatusEnrollment}
	svc := NewPeriodService(repo, nil, nil, nil)

	period, err := svc.SetCurrent(context.Background(), "per-2")
	require.NoError(t, err)
	assert.True(t, period.IsCurrent)
	assert.False(t, repo.periods["per-1"].IsCurrent)
}

func TestSetCurrentRejectsClosed(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.periods["per-1"] = &models.Period{ID: "per-1", Status: models.PeriodStatusClosed}
	svc := NewPeriodService(repo, nil, nil, nil)

	_, err := svc.SetCurrent(context.Background(), "per-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestDeletePeriodPreconditions(t *testing.T) {
	repo := newMockPeriodRepo()
	repo.periods["current"] = &models.Period{ID: "current", Status: models.PeriodStatusPlanning, IsCurrent: true}
	repo.periods["started"] = &models.Period{ID: "started", Status: models.PeriodStatusActive}
	repo.periods["fresh"] = &models.Period{ID: "fresh", Status: models.PeriodStatusPlanning}
	svc := NewPeriodService(repo, nil, nil, nil)

	err := svc.Delete(context.Background(), "current")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), "started")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "fresh"))
	assert.Equal(t, []string{"fresh"}, repo.deleted)
}

func TestGetCurrentNotSet(t *testing.T) {
	repo := newMockPeriodRepo()
	svc := NewPeriodService(repo, nil, nil, nil)

	_, err := svc.GetCurrent(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
