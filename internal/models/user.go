package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin      UserRole = "administrateur"
	RoleDoctor     UserRole = "medecin"
	RoleSubstitute UserRole = "remplacant"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleSubstitute:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Trigram      string     `db:"trigram" json:"trigram"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveTrigram falls back to the username when no trigram was set.
func (u User) EffectiveTrigram() string {
	if t := NormalizeTrigram(u.Trigram); t != "" {
		return t
	}
	return NormalizeTrigram(u.Username)
}

// DirectoryEntry is the slim user view used to build auto-assignment rosters.
type DirectoryEntry struct {
	ID       string   `db:"id" json:"id"`
	Username string   `db:"username" json:"username"`
	Trigram  string   `db:"trigram" json:"trigram"`
	Role     UserRole `db:"role" json:"role"`
}

// NormalizeTrigram trims, truncates to three characters and upper-cases.
func NormalizeTrigram(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return strings.ToUpper(string(runes))
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
