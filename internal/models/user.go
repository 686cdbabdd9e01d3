package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole enumerates the roles recognised by authorization checks.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleProfessor UserRole = "PROFESSOR"
	RoleStudent   UserRole = "STUDENT"
)

// User is a student or professor profile. Students carry a StudentCode
// natural key and a program reference; professors are looked up by email.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         UserRole  `db:"role" json:"role"`
	StudentCode  *string   `db:"student_code" json:"student_code,omitempty"`
	ProgramID    *string   `db:"program_id" json:"program_id,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserFilter defines list criteria for users.
type UserFilter struct {
	Role      UserRole
	ProgramID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}

// JWTClaims are the token claims issued by the external identity provider.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
