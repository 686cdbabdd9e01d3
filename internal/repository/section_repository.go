package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campuskit/academics-api/internal/models"
)

// SectionRepository handles persistence of course sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `s.id, s.course_id, s.period_id, s.professor_id, s.group_number, s.reference_code,
	s.capacity, s.enrolled, s.waitlist_capacity, s.waitlisted, s.delivery, s.schedule, s.status,
	s.grades_submitted, s.active, s.created_at, s.updated_at`

const sectionDetailColumns = sectionColumns + `,
	c.code_es AS course_code_es, c.name_es AS course_name_es, c.credits AS course_credits,
	p.code AS period_code, u.full_name AS professor_name`

const sectionDetailJoins = ` FROM sections s
	JOIN courses c ON c.id = s.course_id
	JOIN periods p ON p.id = s.period_id
	JOIN users u ON u.id = s.professor_id`

// List returns section details filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.PeriodID != "" {
		conditions = append(conditions, fmt.Sprintf("s.period_id = $%d", len(args)+1))
		args = append(args, filter.PeriodID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s%s%s ORDER BY s.reference_code %s LIMIT %d OFFSET %d",
		sectionDetailColumns, sectionDetailJoins, clause, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + sectionDetailJoins + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf("SELECT %s FROM sections s WHERE s.id = $1", sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with course, period and professor info.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	query := fmt.Sprintf("SELECT %s%s WHERE s.id = $1", sectionDetailColumns, sectionDetailJoins)
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsReferenceCode reports whether the derived reference code is taken.
func (r *SectionRepository) ExistsReferenceCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM sections WHERE UPPER(reference_code) = UPPER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check section reference code: %w", err)
	}
	return true, nil
}

// Create persists a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now
	const query = `INSERT INTO sections
	(id, course_id, period_id, professor_id, group_number, reference_code, capacity, enrolled,
	 waitlist_capacity, waitlisted, delivery, schedule, status, grades_submitted, active, created_at, updated_at)
	VALUES (:id, :course_id, :period_id, :professor_id, :group_number, :reference_code, :capacity, :enrolled,
	 :waitlist_capacity, :waitlisted, :delivery, :schedule, :status, :grades_submitted, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update persists mutable section fields. The enrolled and waitlisted
// counters are excluded; they only move inside enrollment transactions.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET professor_id = :professor_id, group_number = :group_number,
	reference_code = :reference_code, capacity = :capacity, waitlist_capacity = :waitlist_capacity,
	delivery = :delivery, schedule = :schedule, status = :status, grades_submitted = :grades_submitted,
	active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}

// UpdateStatus moves a section through its lifecycle.
func (r *SectionRepository) UpdateStatus(ctx context.Context, id string, status models.SectionStatus) error {
	const query = `UPDATE sections SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update section status: %w", err)
	}
	return nil
}

// SetGradesSubmitted flags the section once grading is complete.
func (r *SectionRepository) SetGradesSubmitted(ctx context.Context, id string, submitted bool) error {
	const query = `UPDATE sections SET grades_submitted = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, submitted, time.Now().UTC()); err != nil {
		return fmt.Errorf("set grades submitted: %w", err)
	}
	return nil
}

// SetActive toggles the soft-deactivation flag.
func (r *SectionRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE sections SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set section active: %w", err)
	}
	return nil
}
