package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuskit/academics-api/internal/models"
)

// ClassRepository persists the bulk-import class groupings and their
// enrollment join records.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, program_id, course_id, period_id, group_number, professor_id, created_at, updated_at`

// ListAll returns every class for importer preloading.
func (r *ClassRepository) ListAll(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	query := fmt.Sprintf("SELECT %s FROM classes", classColumns)
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list all classes: %w", err)
	}
	return classes, nil
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByNaturalKey looks up a class by its unique tuple.
func (r *ClassRepository) FindByNaturalKey(ctx context.Context, courseID, periodID, groupNumber, programID string) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes
	WHERE course_id = $1 AND period_id = $2 AND group_number = $3 AND program_id = $4`, classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, courseID, periodID, groupNumber, programID); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a new class. A unique index on the natural-key tuple backs
// the importer's create-or-reuse semantics; unique violations are surfaced
// so the caller can re-fetch.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, program_id, course_id, period_id, group_number, professor_id, created_at, updated_at)
	VALUES (:id, :program_id, :course_id, :period_id, :group_number, :professor_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether the error is a natural-key collision.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// FindEnrollment returns the class enrollment for a (class, student) pair.
func (r *ClassRepository) FindEnrollment(ctx context.Context, classID, studentID string) (*models.ClassEnrollment, error) {
	const query = `SELECT id, class_id, student_id, percentage_grade, status, created_at, updated_at
	FROM class_enrollments WHERE class_id = $1 AND student_id = $2`
	var enrollment models.ClassEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, classID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListEnrollments returns all enrollment rows for a class.
func (r *ClassRepository) ListEnrollments(ctx context.Context, classID string) ([]models.ClassEnrollment, error) {
	const query = `SELECT id, class_id, student_id, percentage_grade, status, created_at, updated_at
	FROM class_enrollments WHERE class_id = $1`
	var enrollments []models.ClassEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateEnrollment persists a new class enrollment.
func (r *ClassRepository) CreateEnrollment(ctx context.Context, enrollment *models.ClassEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.ClassEnrollmentStatusEnrolled
	}
	const query = `INSERT INTO class_enrollments (id, class_id, student_id, percentage_grade, status, created_at, updated_at)
	VALUES (:id, :class_id, :student_id, :percentage_grade, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create class enrollment: %w", err)
	}
	return nil
}

// UpdateEnrollmentGrade overwrites the grade and status of an existing class
// enrollment. Used by re-imports.
func (r *ClassRepository) UpdateEnrollmentGrade(ctx context.Context, id string, grade float64, status models.ClassEnrollmentStatus) error {
	const query = `UPDATE class_enrollments SET percentage_grade = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class enrollment grade: %w", err)
	}
	return nil
}
