package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/pkg/jobs"
)

type mockProgramCreditRepo struct {
	sums       map[string]int
	stored     map[string]int
	byCourse   map[string][]string
	sumErr     error
	updateErr  error
	listErr    error
	recomputes int
}

func newMockProgramCreditRepo() *mockProgramCreditRepo {
	return &mockProgramCreditRepo{
		sums:     make(map[string]int),
		stored:   make(map[string]int),
		byCourse: make(map[string][]string),
	}
}

func (m *mockProgramCreditRepo) SumActiveCredits(ctx context.Context, programID string) (int, error) {
	if m.sumErr != nil {
		return 0, m.sumErr
	}
	return m.sums[programID], nil
}

func (m *mockProgramCreditRepo) UpdateTotalCredits(ctx context.Context, programID string, total int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.stored[programID] = total
	m.recomputes++
	return nil
}

func (m *mockProgramCreditRepo) ListProgramIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.byCourse[courseID], nil
}

type mockCreditQueue struct {
	tasks      []jobs.Task
	enqueueErr error
}

func (m *mockCreditQueue) Enqueue(task jobs.Task) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func TestRecomputeStoresSum(t *testing.T) {
	repo := newMockProgramCreditRepo()
	repo.sums["prog-1"] = 42
	svc := NewCreditService(repo, nil, nil)

	total, err := svc.Recompute(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 42, total)
	assert.Equal(t, 42, repo.stored["prog-1"])
}

func TestRecomputeConverges(t *testing.T) {
	repo := newMockProgramCreditRepo()
	repo.sums["prog-1"] = 30
	svc := NewCreditService(repo, nil, nil)

	_, err := svc.Recompute(context.Background(), "prog-1")
	require.NoError(t, err)
	_, err = svc.Recompute(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 30, repo.stored["prog-1"])
	assert.Equal(t, 2, repo.recomputes)
}

func TestRecomputeSumFailure(t *testing.T) {
	repo := newMockProgramCreditRepo()
	repo.sumErr = errors.New("db down")
	svc := NewCreditService(repo, nil, nil)

	_, err := svc.Recompute(context.Background(), "prog-1")
	require.Error(t, err)
	assert.Empty(t, repo.stored)
}

func TestScheduleEnqueuesTask(t *testing.T) {
	repo := newMockProgramCreditRepo()
	queue := &mockCreditQueue{}
	svc := NewCreditService(repo, nil, nil)
	svc.Bind(queue)

	svc.Schedule("prog-1")

	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskTypeRecomputeCredits, queue.tasks[0].Type)
	assert.Equal(t, "prog-1", queue.tasks[0].Payload)
	assert.NotEmpty(t, queue.tasks[0].ID)
}

func TestScheduleWithoutQueueIsNoop(t *testing.T) {
	svc := NewCreditService(newMockProgramCreditRepo(), nil, nil)
	assert.NotPanics(t, func() { svc.Schedule("prog-1") })
}

func TestScheduleForCourseFansOut(t *testing.T) {
	repo := newMockProgramCreditRepo()
	repo.byCourse["crs-1"] = []string{"prog-1", "prog-2", "prog-3"}
	queue := &mockCreditQueue{}
	svc := NewCreditService(repo, nil, nil)
	svc.Bind(queue)

	svc.ScheduleForCourse(context.Background(), "crs-1")

	require.Len(t, queue.tasks, 3)
	payloads := []string{}
	for _, task := range queue.tasks {
		payloads = append(payloads, task.Payload.(string))
	}
	assert.ElementsMatch(t, []string{"prog-1", "prog-2", "prog-3"}, payloads)
}

func TestProcessTaskRecomputes(t *testing.T) {
	repo := newMockProgramCreditRepo()
	repo.sums["prog-1"] = 18
	svc := NewCreditService(repo, nil, nil)

	err := svc.ProcessTask(context.Background(), jobs.Task{ID: "t1", Type: TaskTypeRecomputeCredits, Payload: "prog-1"})
	require.NoError(t, err)
	assert.Equal(t, 18, repo.stored["prog-1"])
}

func TestProcessTaskDropsBadPayload(t *testing.T) {
	repo := newMockProgramCreditRepo()
	svc := NewCreditService(repo, nil, nil)

	// a malformed payload must not be retried
	require.NoError(t, svc.ProcessTask(context.Background(), jobs.Task{ID: "t1", Payload: 7}))
	require.NoError(t, svc.ProcessTask(context.Background(), jobs.Task{ID: "t2", Payload: ""}))
	assert.Empty(t, repo.stored)
}
