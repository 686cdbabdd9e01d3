package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuskit/academics-api/internal/models"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
)

type mockUserRepo struct {
	users  map[string]*models.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByStudentCode(ctx context.Context, code string) (*models.User, error) {
	for _, u := range m.users {
		if u.StudentCode != nil && *u.StudentCode == code {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsEmail(ctx context.Context, email, excludeID string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) ExistsStudentCode(ctx context.Context, code, excludeID string) (bool, error) {
	for _, u := range m.users {
		if u.StudentCode != nil && *u.StudentCode == code && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.nextID++
	user.ID = fmt.Sprintf("usr-%d", m.nextID)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.users[id].Active = active
	return nil
}

type mockUserProgramReader struct {
	programs map[string]*models.Program
}

func (m *mockUserProgramReader) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func userServiceFixture() (*UserService, *mockUserRepo) {
	repo := newMockUserRepo()
	programs := &mockUserProgramReader{programs: map[string]*models.Program{
		"prog-1": {ID: "prog-1", Active: true},
	}}
	return NewUserService(repo, programs, nil, nil), repo
}

func strPtr(s string) *string { return &s }

func TestCreateStudentNormalizesAndHashes(t *testing.T) {
	svc, _ := userServiceFixture()

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:       "Ana.Lopez@Campus.EDU",
		FullName:    "Ana López",
		Role:        models.RoleStudent,
		Password:    "secret-password",
		StudentCode: strPtr("stu-001"),
		ProgramID:   strPtr("prog-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "ana.lopez@campus.edu", user.Email)
	require.NotNil(t, user.StudentCode)
	assert.Equal(t, "STU-001", *user.StudentCode)
	require.NotNil(t, user.ProgramID)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")))
}

func TestCreateStudentRequiresCode(t *testing.T) {
	svc, _ := userServiceFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "stu@campus.edu",
		FullName: "Student",
		Role:     models.RoleStudent,
		Password: "secret-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateProfessorRejectsStudentFields(t *testing.T) {
	svc, _ := userServiceFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:       "prof@campus.edu",
		FullName:    "Professor",
		Role:        models.RoleProfessor,
		Password:    "secret-password",
		StudentCode: strPtr("STU-002"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, repo := userServiceFixture()
	repo.users["usr-0"] = &models.User{ID: "usr-0", Email: "prof@campus.edu"}

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "PROF@campus.edu",
		FullName: "Professor",
		Role:     models.RoleProfessor,
		Password: "secret-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateStudentDuplicateCode(t *testing.T) {
	svc, repo := userServiceFixture()
	repo.users["usr-0"] = &models.User{ID: "usr-0", Email: "other@campus.edu", StudentCode: strPtr("STU-001")}

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:       "stu@campus.edu",
		FullName:    "Student",
		Role:        models.RoleStudent,
		Password:    "secret-password",
		StudentCode: strPtr("stu-001"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateStudentUnknownProgram(t *testing.T) {
	svc, _ := userServiceFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:       "stu@campus.edu",
		FullName:    "Student",
		Role:        models.RoleStudent,
		Password:    "secret-password",
		StudentCode: strPtr("STU-001"),
		ProgramID:   strPtr("ghost"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateUserKeepsRoleAndCode(t *testing.T) {
	svc, repo := userServiceFixture()
	repo.users["usr-1"] = &models.User{
		ID: "usr-1", Email: "stu@campus.edu", Role: models.RoleStudent, StudentCode: strPtr("STU-001"),
	}

	user, err := svc.Update(context.Background(), "usr-1", UpdateUserRequest{
		Email:    "renamed@campus.edu",
		FullName: "Renamed Student",
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed@campus.edu", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
	require.NotNil(t, user.StudentCode)
	assert.Equal(t, "STU-001", *user.StudentCode)
}

func TestUpdateProgramOnNonStudent(t *testing.T) {
	svc, repo := userServiceFixture()
	repo.users["usr-1"] = &models.User{ID: "usr-1", Email: "prof@campus.edu", Role: models.RoleProfessor}

	_, err := svc.Update(context.Background(), "usr-1", UpdateUserRequest{
		Email:     "prof@campus.edu",
		FullName:  "Professor",
		ProgramID: strPtr("prog-1"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSetActiveTogglesAccount(t *testing.T) {
	svc, repo := userServiceFixture()
	repo.users["usr-1"] = &models.User{ID: "usr-1", Active: true}

	user, err := svc.SetActive(context.Background(), "usr-1", false)
	require.NoError(t, err)
	assert.False(t, user.Active)

	user, err = svc.SetActive(context.Background(), "usr-1", true)
	require.NoError(t, err)
	assert.True(t, user.Active)
}
