package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func expectNoActiveDuplicate(mock sqlmock.Sqlmock, studentID, sectionID string) {
	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs(studentID, sectionID,
			models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress, models.EnrollmentStatusIncomplete).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
}

func TestEnrollmentRepositoryCreateCounted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled, capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(10, 30))
	expectNoActiveDuplicate(mock, "stu-1", "sec-1")
	mock.ExpectExec("UPDATE sections SET enrolled = enrolled \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: true})
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.ID)
	require.True(t, enrollment.SeatCounted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateCountedCapacityExceeded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled, capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(30, 30))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: true})
	require.ErrorIs(t, err, appErrors.ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateCountedBypassCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled, capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(30, 30))
	expectNoActiveDuplicate(mock, "stu-1", "sec-1")
	mock.ExpectExec("UPDATE sections SET enrolled = enrolled \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: true, BypassCapacity: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateUncountedSkipsLock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectNoActiveDuplicate(mock, "stu-1", "sec-1")
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: false})
	require.NoError(t, err)
	require.False(t, enrollment.SeatCounted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateCountedDuplicateInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT enrolled, capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "capacity"}).AddRow(10, 30))
	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-1", "sec-1",
			models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress, models.EnrollmentStatusIncomplete).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: true})
	require.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateUncountedUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectNoActiveDuplicate(mock, "stu-1", "sec-1")
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1"}
	err := repo.CreateCounted(context.Background(), enrollment, CreateOptions{CountSeat: false})
	require.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteCountedRollsBackSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled = GREATEST(enrolled - 1, 0)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteCounted(context.Background(), &models.Enrollment{ID: "enr-1", SectionID: "sec-1", SeatCounted: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDeleteCountedMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DeleteCounted(context.Background(), &models.Enrollment{ID: "enr-1", SeatCounted: true})
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-1", "sec-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress, models.EnrollmentStatusIncomplete).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-2", "sec-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusInProgress, models.EnrollmentStatusIncomplete).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActive(context.Background(), "stu-2", "sec-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
