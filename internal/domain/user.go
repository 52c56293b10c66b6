package domain

import (
	"strings"
	"time"
)

// Role define el conjunto cerrado de roles del sistema.
type Role string

const (
	RoleAuthenticated Role = "AUTHENTICATED"
	RoleManager       Role = "MANAGER"
	RoleAdmin         Role = "ADMIN"
)

// Valid indica si el rol pertenece al conjunto cerrado.
func (r Role) Valid() bool {
	switch r {
	case RoleAuthenticated, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normaliza y valida un rol recibido como string.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

type User struct {
	ID                  string    `json:"id"`
	Nickname            string    `json:"nickname,omitempty"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	Role                Role      `json:"role"`
	FirstName           string    `json:"first_name,omitempty"`
	LastName            string    `json:"last_name,omitempty"`
	Bio                 string    `json:"bio,omitempty"`
	GithubProfileURL    string    `json:"github_profile_url,omitempty"`
	LinkedinProfileURL  string    `json:"linkedin_profile_url,omitempty"`
	IsProfessional      bool      `json:"is_professional"`
	IsVerified          bool      `json:"is_verified"`
	FailedLoginAttempts int       `json:"-"`
	IsLocked            bool      `json:"is_locked"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
