package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuskit/academics-api/pkg/jobs"
)

// TaskTypeRecomputeCredits tags deferred credit recomputation tasks.
const TaskTypeRecomputeCredits = "recompute_program_credits"

type programCreditRepo interface {
	SumActiveCredits(ctx context.Context, programID string) (int, error)
	UpdateTotalCredits(ctx context.Context, programID string, total int) error
	ListProgramIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}

type creditQueue interface {
	Enqueue(task jobs.Task) error
}

// CreditService keeps each program's derived credit total converged with its
// active course associations. Recomputation runs deferred so the triggering
// mutation's latency and atomicity stay decoupled from the fan-out scan;
// totals are eventually consistent and callers needing a fresh value use
// Recompute directly.
type CreditService struct {
	programs programCreditRepo
	queue    creditQueue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewCreditService constructs CreditService. The queue is attached later via
// Bind because the queue's handler is this service's ProcessTask.
func NewCreditService(programs programCreditRepo, metrics *MetricsService, logger *zap.Logger) *CreditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditService{programs: programs, metrics: metrics, logger: logger}
}

// Bind attaches the dispatch queue.
func (s *CreditService) Bind(queue creditQueue) {
	s.queue = queue
}

// Recompute scans the program's active associations, sums the credits of
// their active courses and overwrites the stored total. Full replace, so
// repeated runs converge.
func (s *CreditService) Recompute(ctx context.Context, programID string) (int, error) {
	total, err := s.programs.SumActiveCredits(ctx, programID)
	if err != nil {
		return 0, fmt.Errorf("sum credits for program %s: %w", programID, err)
	}
	if err := s.programs.UpdateTotalCredits(ctx, programID, total); err != nil {
		return 0, fmt.Errorf("store credit total for program %s: %w", programID, err)
	}
	if s.metrics != nil {
		s.metrics.RecordCreditRecompute()
	}
	s.logger.Debug("program credits recomputed", zap.String("program_id", programID), zap.Int("total", total))
	return total, nil
}

// Schedule enqueues a deferred recompute for one program. Fire-and-forget:
// enqueue failures are logged, not returned, because the triggering mutation
// has already committed.
func (s *CreditService) Schedule(programID string) {
	if s.queue == nil {
		s.logger.Warn("credit queue not bound, skipping recompute", zap.String("program_id", programID))
		return
	}
	task := jobs.Task{ID: uuid.NewString(), Type: TaskTypeRecomputeCredits, Payload: programID}
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Error("failed to enqueue credit recompute", zap.String("program_id", programID), zap.Error(err))
	}
}

// ScheduleForCourse fans out a recompute to every program holding an active
// association to the course. Used when a course's credit value changes.
func (s *CreditService) ScheduleForCourse(ctx context.Context, courseID string) {
	programIDs, err := s.programs.ListProgramIDsByCourse(ctx, courseID)
	if err != nil {
		s.logger.Error("failed to list programs for course", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	for _, programID := range programIDs {
		s.Schedule(programID)
	}
}

// ProcessTask is the queue handler for deferred recomputes.
func (s *CreditService) ProcessTask(ctx context.Context, task jobs.Task) error {
	programID, ok := task.Payload.(string)
	if !ok || programID == "" {
		s.logger.Error("invalid credit recompute payload", zap.String("task_id", task.ID))
		return nil
	}
	_, err := s.Recompute(ctx, programID)
	return err
}
