package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-tour-booking/internal/model"
)

// MemoryUserRepository is an in-process identity store with the same
// semantics as UserRepository. It backs tests and APP_ENV=development runs.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]model.User
	now   func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: map[string]model.User{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string, opts model.ReadOptions) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || (!u.Active && !opts.IncludeInactive) {
		return model.User{}, userNotFound(id)
	}
	return project(u, opts), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string, opts model.ReadOptions) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.NormalizeEmail(email)
	for _, u := range r.users {
		if u.Email != key || (!u.Active && !opts.IncludeInactive) {
			continue
		}
		return project(u, opts), nil
	}
	return model.User{}, userNotFound(email)
}

func (r *MemoryUserRepository) Create(_ context.Context, nu model.NewUser) (model.User, error) {
	if strings.TrimSpace(nu.PasswordHash) == "" {
		return model.User{}, fmt.Errorf("create user: %w: password hash is required", model.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := model.NormalizeEmail(nu.Email)
	if r.emailInUseLocked(email, "") {
		return model.User{}, emailTaken(email)
	}

	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}

	now := r.now()
	u := model.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(nu.Name),
		Email:        email,
		Role:         role,
		PasswordHash: nu.PasswordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[u.ID] = u

	return project(u, model.ActiveOnly), nil
}

func (r *MemoryUserRepository) UpdateByID(_ context.Context, id string, update model.UserUpdate) (model.User, error) {
	if err := update.Validate(); err != nil {
		return model.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Active {
		return model.User{}, userNotFound(id)
	}

	for _, a := range update.Assignments() {
		if err := apply(&u, a); err != nil {
			return model.User{}, err
		}
	}
	if r.emailInUseLocked(u.Email, u.ID) {
		return model.User{}, emailTaken(u.Email)
	}

	u.UpdatedAt = r.now()
	r.users[id] = u

	return project(u, model.ActiveOnly), nil
}

func (r *MemoryUserRepository) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time, change model.PasswordChange) (model.User, error) {
	if err := change.Validate(); err != nil {
		return model.User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		if !u.Active || u.PasswordResetToken == nil || *u.PasswordResetToken != tokenHash {
			continue
		}
		if u.PasswordResetExpires == nil || !u.PasswordResetExpires.After(now) {
			return model.User{}, model.ErrInvalidOrExpiredResetToken
		}

		for _, a := range change.Assignments() {
			if err := apply(&u, a); err != nil {
				return model.User{}, err
			}
		}
		u.UpdatedAt = r.now()
		r.users[id] = u
		return project(u, model.ActiveOnly), nil
	}
	return model.User{}, model.ErrInvalidOrExpiredResetToken
}

func (r *MemoryUserRepository) RevokeResetToken(_ context.Context, id string, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || u.PasswordResetToken == nil || *u.PasswordResetToken != tokenHash {
		return nil
	}

	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.UpdatedAt = r.now()
	r.users[id] = u
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return userNotFound(id)
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context, page int, limit int, opts model.ReadOptions) ([]model.User, int, error) {
	page, limit = normalizePage(page, limit)

	r.mu.Lock()
	all := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		if !u.Active && !opts.IncludeInactive {
			continue
		}
		all = append(all, project(u, opts))
	}
	r.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	start := (page - 1) * limit
	if start >= len(all) {
		return []model.User{}, len(all), nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *MemoryUserRepository) Health(context.Context) error {
	return nil
}

func (r *MemoryUserRepository) emailInUseLocked(email string, exceptID string) bool {
	for id, u := range r.users {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

// project copies u so callers never share pointer fields with the store, and
// drops the hash unless it was asked for.
func project(u model.User, opts model.ReadOptions) model.User {
	out := u
	if !opts.WithPassword {
		out.PasswordHash = ""
	}
	out.PasswordChangedAt = copyTime(u.PasswordChangedAt)
	out.PasswordResetExpires = copyTime(u.PasswordResetExpires)
	if u.PasswordResetToken != nil {
		token := *u.PasswordResetToken
		out.PasswordResetToken = &token
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func apply(u *model.User, a model.Assignment) error {
	switch a.Column {
	case model.ColumnName:
		u.Name, _ = a.Value.(string)
	case model.ColumnEmail:
		u.Email, _ = a.Value.(string)
	case model.ColumnRole:
		role, _ := a.Value.(string)
		u.Role = model.Role(role)
	case model.ColumnPasswordHash:
		u.PasswordHash, _ = a.Value.(string)
	case model.ColumnPasswordChangedAt:
		u.PasswordChangedAt = timeValue(a.Value)
	case model.ColumnPasswordResetToken:
		if s, ok := a.Value.(string); ok {
			u.PasswordResetToken = &s
		} else {
			u.PasswordResetToken = nil
		}
	case model.ColumnPasswordResetExpires:
		u.PasswordResetExpires = timeValue(a.Value)
	case model.ColumnActive:
		u.Active, _ = a.Value.(bool)
	default:
		return fmt.Errorf("update user: column %q is not updatable", a.Column)
	}
	return nil
}

func timeValue(v any) *time.Time {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return &t
}
