package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Column names a user row may be updated through. Repositories only ever
// interpolate these constants into SQL.
const (
	ColumnName                 = "name"
	ColumnEmail                = "email"
	ColumnRole                 = "role"
	ColumnPasswordHash         = "password_hash"
	ColumnPasswordChangedAt    = "password_changed_at"
	ColumnPasswordResetToken   = "password_reset_token"
	ColumnPasswordResetExpires = "password_reset_expires"
	ColumnActive               = "active"
)

type Assignment struct {
	Column string
	Value  any
}

// UserUpdate is a per-operation allow-listed set of column assignments. The
// interface is sealed so every update shape lives in this file.
type UserUpdate interface {
	Validate() error
	Assignments() []Assignment
	userUpdate()
}

// ProfileUpdate is what a user may change about themselves.
type ProfileUpdate struct {
	Name  *string
	Email *string
}

func (u ProfileUpdate) Validate() error {
	if u.Name == nil && u.Email == nil {
		return fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if u.Name != nil {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Email != nil {
		if err := ValidateEmail(*u.Email); err != nil {
			return err
		}
	}
	return nil
}

func (u ProfileUpdate) Assignments() []Assignment {
	out := make([]Assignment, 0, 2)
	if u.Name != nil {
		out = append(out, Assignment{Column: ColumnName, Value: strings.TrimSpace(*u.Name)})
	}
	if u.Email != nil {
		out = append(out, Assignment{Column: ColumnEmail, Value: NormalizeEmail(*u.Email)})
	}
	return out
}

func (ProfileUpdate) userUpdate() {}

// AdminUserUpdate is what an administrator may change on any account.
type AdminUserUpdate struct {
	Name  *string
	Email *string
	Role  *Role
}

func (u AdminUserUpdate) Validate() error {
	if u.Role != nil && !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, *u.Role)
	}
	if u.Name == nil && u.Email == nil {
		if u.Role == nil {
			return fmt.Errorf("%w: nothing to update", ErrValidation)
		}
		return nil
	}
	return ProfileUpdate{Name: u.Name, Email: u.Email}.Validate()
}

func (u AdminUserUpdate) Assignments() []Assignment {
	out := ProfileUpdate{Name: u.Name, Email: u.Email}.Assignments()
	if u.Role != nil {
		out = append(out, Assignment{Column: ColumnRole, Value: string(*u.Role)})
	}
	return out
}

func (AdminUserUpdate) userUpdate() {}

// PasswordChange replaces the hash and advances password_changed_at. Any
// outstanding reset token is cleared with it.
type PasswordChange struct {
	PasswordHash string
	ChangedAt    time.Time
}

func (u PasswordChange) Validate() error {
	if u.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", ErrValidation)
	}
	if u.ChangedAt.IsZero() {
		return fmt.Errorf("%w: password change time is required", ErrValidation)
	}
	return nil
}

func (u PasswordChange) Assignments() []Assignment {
	return []Assignment{
		{Column: ColumnPasswordHash, Value: u.PasswordHash},
		{Column: ColumnPasswordChangedAt, Value: u.ChangedAt.UTC()},
		{Column: ColumnPasswordResetToken, Value: nil},
		{Column: ColumnPasswordResetExpires, Value: nil},
	}
}

func (PasswordChange) userUpdate() {}

// ResetTokenIssue stores a reset token hash together with its expiry.
type ResetTokenIssue struct {
	TokenHash string
	ExpiresAt time.Time
}

func (u ResetTokenIssue) Validate() error {
	if u.TokenHash == "" || u.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: reset token hash and expiry must be set together", ErrValidation)
	}
	return nil
}

func (u ResetTokenIssue) Assignments() []Assignment {
	return []Assignment{
		{Column: ColumnPasswordResetToken, Value: u.TokenHash},
		{Column: ColumnPasswordResetExpires, Value: u.ExpiresAt.UTC()},
	}
}

func (ResetTokenIssue) userUpdate() {}

// Deactivation soft-deletes the account.
type Deactivation struct{}

func (Deactivation) Validate() error { return nil }

func (Deactivation) Assignments() []Assignment {
	return []Assignment{{Column: ColumnActive, Value: false}}
}

func (Deactivation) userUpdate() {}

const MinPasswordLength = 8

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}

func ValidateEmail(email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	return nil
}

// ValidatePassword checks the plaintext shape and that the confirmation matches.
func ValidatePassword(password string, confirm string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords are not the same", ErrValidation)
	}
	return nil
}
