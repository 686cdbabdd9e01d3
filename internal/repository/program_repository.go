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

// ProgramRepository handles persistence of programs and their course
// associations.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

const programColumns = `id, code_es, code_en, name_es, name_en, description_es, description_en,
	type, language_mode, total_credits, duration_periods, active, created_at, updated_at`

// List returns programs filtered by the provided criteria.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf(
			"(LOWER(name_es) LIKE $%d OR LOWER(name_en) LIKE $%d OR LOWER(code_es) LIKE $%d OR LOWER(code_en) LIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1, len(args)+1))
		args = append(args, pattern)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name_es",
		"code":       "code_es",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "code_es"
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

	query := fmt.Sprintf("SELECT %s FROM programs%s ORDER BY %s %s LIMIT %d OFFSET %d",
		programColumns, clause, orderBy, order, size, offset)

	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM programs"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return programs, total, nil
}

// ListAll returns every program for importer preloading.
func (r *ProgramRepository) ListAll(ctx context.Context) ([]models.Program, error) {
	var programs []models.Program
	query := fmt.Sprintf("SELECT %s FROM programs", programColumns)
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list all programs: %w", err)
	}
	return programs, nil
}

// FindByID returns a program by its ID.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	query := fmt.Sprintf("SELECT %s FROM programs WHERE id = $1", programColumns)
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// ExistsCode reports whether either language code is already taken.
func (r *ProgramRepository) ExistsCode(ctx context.Context, codeEs, codeEn, excludeID string) (bool, error) {
	query := `SELECT 1 FROM programs
	WHERE (UPPER(code_es) IN (UPPER($1), UPPER($2)) OR UPPER(code_en) IN (UPPER($1), UPPER($2)))`
	args := []interface{}{codeEs, codeEn}
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
		return false, fmt.Errorf("check program code: %w", err)
	}
	return true, nil
}

// Create persists a new program.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = now
	const query = `INSERT INTO programs
	(id, code_es, code_en, name_es, name_en, description_es, description_en, type, language_mode,
	 total_credits, duration_periods, active, created_at, updated_at)
	VALUES (:id, :code_es, :code_en, :name_es, :name_en, :description_es, :description_en, :type, :language_mode,
	 :total_credits, :duration_periods, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// Update persists catalog fields of a program. TotalCredits is excluded: it
// only changes through UpdateTotalCredits.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE programs SET code_es = :code_es, code_en = :code_en, name_es = :name_es,
	name_en = :name_en, description_es = :description_es, description_en = :description_en,
	type = :type, language_mode = :language_mode, duration_periods = :duration_periods,
	active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

// SetActive toggles the soft-deactivation flag.
func (r *ProgramRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE programs SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set program active: %w", err)
	}
	return nil
}

// UpdateTotalCredits overwrites the derived credit total.
func (r *ProgramRepository) UpdateTotalCredits(ctx context.Context, id string, total int) error {
	const query = `UPDATE programs SET total_credits = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, total, time.Now().UTC()); err != nil {
		return fmt.Errorf("update program total credits: %w", err)
	}
	return nil
}

// SumActiveCredits computes the credit total over active associations whose
// course is also active.
func (r *ProgramRepository) SumActiveCredits(ctx context.Context, programID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0) FROM program_courses pc
	JOIN courses c ON c.id = pc.course_id
	WHERE pc.program_id = $1 AND pc.active = TRUE AND c.active = TRUE`
	var total int
	if err := r.db.GetContext(ctx, &total, query, programID); err != nil {
		return 0, fmt.Errorf("sum program credits: %w", err)
	}
	return total, nil
}

// ListAssociations returns association rows with course info.
func (r *ProgramRepository) ListAssociations(ctx context.Context, programID string) ([]models.ProgramCourseDetail, error) {
	const query = `SELECT pc.id, pc.program_id, pc.course_id, pc.is_required, pc.category_override,
	pc.active, pc.created_at, pc.updated_at,
	c.code_es AS course_code_es, c.name_es AS course_name_es, c.credits AS course_credits, c.active AS course_active
	FROM program_courses pc
	JOIN courses c ON c.id = pc.course_id
	WHERE pc.program_id = $1
	ORDER BY c.code_es`
	var associations []models.ProgramCourseDetail
	if err := r.db.SelectContext(ctx, &associations, query, programID); err != nil {
		return nil, fmt.Errorf("list program courses: %w", err)
	}
	return associations, nil
}

// FindAssociation returns an association by ID.
func (r *ProgramRepository) FindAssociation(ctx context.Context, id string) (*models.ProgramCourse, error) {
	const query = `SELECT id, program_id, course_id, is_required, category_override, active, created_at, updated_at
	FROM program_courses WHERE id = $1`
	var association models.ProgramCourse
	if err := r.db.GetContext(ctx, &association, query, id); err != nil {
		return nil, err
	}
	return &association, nil
}

// ExistsAssociation checks for an active association between a program and course.
func (r *ProgramRepository) ExistsAssociation(ctx context.Context, programID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM program_courses WHERE program_id = $1 AND course_id = $2 AND active = TRUE LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, programID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check program course: %w", err)
	}
	return true, nil
}

// CreateAssociation persists a new program-course association.
func (r *ProgramRepository) CreateAssociation(ctx context.Context, association *models.ProgramCourse) error {
	if association.ID == "" {
		association.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if association.CreatedAt.IsZero() {
		association.CreatedAt = now
	}
	association.UpdatedAt = now
	const query = `INSERT INTO program_courses (id, program_id, course_id, is_required, category_override, active, created_at, updated_at)
	VALUES (:id, :program_id, :course_id, :is_required, :category_override, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, association); err != nil {
		return fmt.Errorf("create program course: %w", err)
	}
	return nil
}

// UpdateAssociation persists mutable association fields.
func (r *ProgramRepository) UpdateAssociation(ctx context.Context, association *models.ProgramCourse) error {
	association.UpdatedAt = time.Now().UTC()
	const query = `UPDATE program_courses SET is_required = :is_required, category_override = :category_override,
	active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, association); err != nil {
		return fmt.Errorf("update program course: %w", err)
	}
	return nil
}

// DeleteAssociation removes an association row.
func (r *ProgramRepository) DeleteAssociation(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM program_courses WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete program course: %w", err)
	}
	return nil
}

// ListProgramIDsByCourse returns programs holding an active association to the
// course. Used to fan out credit recomputation on course credit changes.
func (r *ProgramRepository) ListProgramIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT DISTINCT program_id FROM program_courses WHERE course_id = $1 AND active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list programs by course: %w", err)
	}
	return ids, nil
}
