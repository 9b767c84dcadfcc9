package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

var roles = []Role{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// ParseRole normalizes raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, role := range roles {
		if role == candidate {
			return role, true
		}
	}
	return "", false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// User is the persisted identity. PasswordHash is only populated when a read
// explicitly asks for it and is never serialized.
type User struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Role                 Role       `json:"role"`
	PasswordHash         string     `json:"-"`
	PasswordChangedAt    *time.Time `json:"password_changed_at,omitempty"`
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TimestampPrecision is the resolution of stored timestamps (PostgreSQL
// timestamptz) and of session token issue times.
const TimestampPrecision = time.Microsecond

// ChangedPasswordAfter reports whether the password was changed at or after
// issuedAt.
func (u User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return !u.PasswordChangedAt.Before(issuedAt)
}

// NewUser carries the fields accepted at creation time.
type NewUser struct {
	Name         string
	Email        string
	Role         Role
	PasswordHash string
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UserList struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ReadOptions is passed explicitly to every identity lookup. The zero value
// reads active rows without the password hash.
type ReadOptions struct {
	IncludeInactive bool
	WithPassword    bool
}

var (
	ActiveOnly         = ReadOptions{}
	ActiveWithPassword = ReadOptions{WithPassword: true}
	AnyState           = ReadOptions{IncludeInactive: true}
)
