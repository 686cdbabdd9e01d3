package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

// EnrollmentRepository handles persistence of enrollments and owns the seat
// counter invariant: a counted insert and its section increment commit or
// roll back together.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.section_id, e.course_id, e.period_id, e.professor_id,
	e.status, e.seat_counted, e.percentage_grade, e.letter_grade, e.grade_points, e.quality_points,
	e.enrolled_by, e.graded_by, e.enrolled_at, e.graded_at, e.created_at, e.updated_at`

const enrollmentDetailColumns = enrollmentColumns + `,
	u.full_name AS student_name, COALESCE(u.student_code, '') AS student_code,
	s.reference_code AS section_ref, c.name_es AS course_name_es, c.credits AS course_credits,
	p.code AS period_code`

const enrollmentDetailJoins = ` FROM enrollments e
	JOIN users u ON u.id = e.student_id
	JOIN sections s ON s.id = e.section_id
	JOIN courses c ON c.id = e.course_id
	JOIN periods p ON p.id = e.period_id`

// List returns enrollment details filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("e.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"section_ref":  "s.reference_code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s%s%s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailJoins, clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + enrollmentDetailJoins + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s%s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// activeStatusFilter builds a placeholder list starting at $start and the
// matching args for the statuses that count toward the duplicate invariant.
func activeStatusFilter(start int) (string, []interface{}) {
	placeholders := make([]string, len(models.ActiveEnrollmentStatuses))
	args := make([]interface{}, len(models.ActiveEnrollmentStatuses))
	for i, status := range models.ActiveEnrollmentStatuses {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = status
	}
	return strings.Join(placeholders, ", "), args
}

func activeEnrollmentQuery() (string, []interface{}) {
	filter, args := activeStatusFilter(3)
	query := fmt.Sprintf(`SELECT 1 FROM enrollments
	WHERE student_id = $1 AND section_id = $2 AND status IN (%s) LIMIT 1`, filter)
	return query, args
}

// ExistsActive checks whether the student already holds an active enrollment
// in the section.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, sectionID string) (bool, error) {
	query, statusArgs := activeEnrollmentQuery()
	args := append([]interface{}{studentID, sectionID}, statusArgs...)
	var exists int
	err := r.db.GetContext(ctx, &exists, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CreateOptions controls seat accounting behaviour during creation.
type CreateOptions struct {
	// CountSeat is false for auditing enrollments that never occupy a seat.
	CountSeat bool
	// BypassCapacity allows administrative overrides past capacity. The
	// counter still increments.
	BypassCapacity bool
}

// CreateCounted inserts the enrollment and, when CountSeat is set,
// increments the owning section's counter inside the same transaction. The
// section row is locked first so racing writers serialize and the counter is
// never lost. The active-duplicate check runs inside the same transaction,
// after the lock, so two concurrent enrollments for the same student cannot
// both pass it; the partial unique index on active (student_id, section_id)
// rows backs the uncounted path, which takes no lock. Returns
// ErrCapacityExceeded when the section is full and no bypass was requested,
// ErrDuplicateEnrollment when the student already holds an active seat.
func (r *EnrollmentRepository) CreateCounted(ctx context.Context, enrollment *models.Enrollment, opts CreateOptions) (err error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	enrollment.SeatCounted = opts.CountSeat

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if opts.CountSeat {
		var seat struct {
			Enrolled int `db:"enrolled"`
			Capacity int `db:"capacity"`
		}
		if err = tx.GetContext(ctx, &seat, `SELECT enrolled, capacity FROM sections WHERE id = $1 FOR UPDATE`, enrollment.SectionID); err != nil {
			return fmt.Errorf("lock section: %w", err)
		}
		if seat.Enrolled >= seat.Capacity && !opts.BypassCapacity {
			err = appErrors.ErrCapacityExceeded
			return err
		}
	}

	dupQuery, statusArgs := activeEnrollmentQuery()
	dupArgs := append([]interface{}{enrollment.StudentID, enrollment.SectionID}, statusArgs...)
	var dup int
	switch dupErr := tx.GetContext(ctx, &dup, dupQuery, dupArgs...); {
	case dupErr == nil:
		err = appErrors.ErrDuplicateEnrollment
		return err
	case !errors.Is(dupErr, sql.ErrNoRows):
		err = fmt.Errorf("check duplicate enrollment: %w", dupErr)
		return err
	}

	if opts.CountSeat {
		if _, err = tx.ExecContext(ctx, `UPDATE sections SET enrolled = enrolled + 1, updated_at = $2 WHERE id = $1`, enrollment.SectionID, now); err != nil {
			return fmt.Errorf("increment section counter: %w", err)
		}
	}

	const query = `INSERT INTO enrollments
	(id, student_id, section_id, course_id, period_id, professor_id, status, seat_counted,
	 percentage_grade, letter_grade, grade_points, quality_points, enrolled_by, graded_by,
	 enrolled_at, graded_at, created_at, updated_at)
	VALUES (:id, :student_id, :section_id, :course_id, :period_id, :professor_id, :status, :seat_counted,
	 :percentage_grade, :letter_grade, :grade_points, :quality_points, :enrolled_by, :graded_by,
	 :enrolled_at, :graded_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, enrollment); err != nil {
		if IsUniqueViolation(err) {
			err = appErrors.ErrDuplicateEnrollment
			return err
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// DeleteCounted removes the enrollment and rolls back the seat counter when
// the enrollment was counted. The decrement clamps at zero.
func (r *EnrollmentRepository) DeleteCounted(ctx context.Context, enrollment *models.Enrollment) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, enrollment.ID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if enrollment.SeatCounted {
		const query = `UPDATE sections SET enrolled = GREATEST(enrolled - 1, 0), updated_at = $2 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, query, enrollment.SectionID, time.Now().UTC()); err != nil {
			return fmt.Errorf("decrement section counter: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment through its lifecycle.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetGrade replaces the raw grade and all three derived fields together and
// stamps the grading audit columns. Partial grade writes are not possible
// through this repository.
func (r *EnrollmentRepository) SetGrade(ctx context.Context, id string, percentage, points, quality float64, letter, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE enrollments SET percentage_grade = $2, letter_grade = $3, grade_points = $4,
	quality_points = $5, graded_by = $6, graded_at = $7, updated_at = $7 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, percentage, letter, points, quality, gradedBy, gradedAt); err != nil {
		return fmt.Errorf("set enrollment grade: %w", err)
	}
	return nil
}

// ListBySection returns enrollment details for one section, ordered by
// student name for grade sheets.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s%s WHERE e.section_id = $1 ORDER BY u.full_name", enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByStudent returns enrollment details for one student across periods,
// ordered chronologically for transcripts.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s%s WHERE e.student_id = $1 ORDER BY p.start_date, c.code_es", enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}
