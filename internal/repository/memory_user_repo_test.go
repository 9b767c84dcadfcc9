package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-tour-booking/internal/model"
)

func seedUser(t *testing.T, repo *MemoryUserRepository, email string) model.User {
	t.Helper()

	u, err := repo.Create(context.Background(), model.NewUser{
		Name:         "Jonas",
		Email:        email,
		PasswordHash: "$2a$12$hash",
	})
	require.NoError(t, err)
	return u
}

func TestMemoryUserRepository_ReadOptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "A@X.com")

	t.Run("default read hides the hash", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "a@x.com", model.ActiveOnly)
		require.NoError(t, err)
		assert.Empty(t, got.PasswordHash)
		assert.Equal(t, model.RoleUser, got.Role)
	})

	t.Run("password opt-in returns the hash", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "a@x.com", model.ActiveWithPassword)
		require.NoError(t, err)
		assert.Equal(t, "$2a$12$hash", got.PasswordHash)
	})

	t.Run("soft deleted rows need IncludeInactive", func(t *testing.T) {
		_, err := repo.UpdateByID(ctx, u.ID, model.Deactivation{})
		require.NoError(t, err)

		_, err = repo.FindByID(ctx, u.ID, model.ActiveOnly)
		require.ErrorIs(t, err, model.ErrUserNotFound)

		got, err := repo.FindByID(ctx, u.ID, model.AnyState)
		require.NoError(t, err)
		assert.False(t, got.Active)
	})
}

func TestMemoryUserRepository_UniqueEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryUserRepository()
	seedUser(t, repo, "a@x.com")
	other := seedUser(t, repo, "b@x.com")

	_, err := repo.Create(ctx, model.NewUser{Name: "Dup", Email: "A@x.COM", PasswordHash: "h"})
	require.ErrorIs(t, err, model.ErrUserAlreadyExists)

	taken := "a@x.com"
	_, err = repo.UpdateByID(ctx, other.ID, model.ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, model.ErrValidation)

	stored, err := repo.FindByID(ctx, other.ID, model.ActiveOnly)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", stored.Email)
}

func TestMemoryUserRepository_ConsumeResetToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()
	change := model.PasswordChange{PasswordHash: "$2a$12$new", ChangedAt: now}

	t.Run("single use", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		u := seedUser(t, repo, "a@x.com")
		_, err := repo.UpdateByID(ctx, u.ID, model.ResetTokenIssue{TokenHash: "h1", ExpiresAt: now.Add(10 * time.Minute)})
		require.NoError(t, err)

		got, err := repo.ConsumeResetToken(ctx, "h1", now, change)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Nil(t, got.PasswordResetToken)
		assert.Nil(t, got.PasswordResetExpires)
		require.NotNil(t, got.PasswordChangedAt)
		assert.True(t, now.Equal(*got.PasswordChangedAt))

		stored, err := repo.FindByID(ctx, u.ID, model.ActiveWithPassword)
		require.NoError(t, err)
		assert.Equal(t, "$2a$12$new", stored.PasswordHash)

		_, err = repo.ConsumeResetToken(ctx, "h1", now, change)
		require.ErrorIs(t, err, model.ErrInvalidOrExpiredResetToken)
	})

	t.Run("expired token is refused and left in place", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		u := seedUser(t, repo, "a@x.com")
		_, err := repo.UpdateByID(ctx, u.ID, model.ResetTokenIssue{TokenHash: "h2", ExpiresAt: now.Add(10 * time.Minute)})
		require.NoError(t, err)

		_, err = repo.ConsumeResetToken(ctx, "h2", now.Add(11*time.Minute), change)
		require.ErrorIs(t, err, model.ErrInvalidOrExpiredResetToken)

		stored, err := repo.FindByID(ctx, u.ID, model.ActiveWithPassword)
		require.NoError(t, err)
		require.NotNil(t, stored.PasswordResetToken)
		assert.Equal(t, "$2a$12$hash", stored.PasswordHash)
	})

	t.Run("invalid change leaves the token usable", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		u := seedUser(t, repo, "a@x.com")
		_, err := repo.UpdateByID(ctx, u.ID, model.ResetTokenIssue{TokenHash: "h4", ExpiresAt: now.Add(10 * time.Minute)})
		require.NoError(t, err)

		_, err = repo.ConsumeResetToken(ctx, "h4", now, model.PasswordChange{ChangedAt: now})
		require.ErrorIs(t, err, model.ErrValidation)

		_, err = repo.ConsumeResetToken(ctx, "h4", now, change)
		require.NoError(t, err)
	})

	t.Run("concurrent consumers, exactly one wins", func(t *testing.T) {
		repo := NewMemoryUserRepository()
		u := seedUser(t, repo, "a@x.com")
		_, err := repo.UpdateByID(ctx, u.ID, model.ResetTokenIssue{TokenHash: "h3", ExpiresAt: now.Add(10 * time.Minute)})
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.ConsumeResetToken(ctx, "h3", now, change); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryUserRepository_RevokeResetToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now().UTC()
	repo := NewMemoryUserRepository()
	u := seedUser(t, repo, "a@x.com")

	_, err := repo.UpdateByID(ctx, u.ID, model.ResetTokenIssue{TokenHash: "newer", ExpiresAt: now.Add(10 * time.Minute)})
	require.NoError(t, err)

	require.NoError(t, repo.RevokeResetToken(ctx, u.ID, "older"))
	stored, err := repo.FindByID(ctx, u.ID, model.ActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetToken)
	assert.Equal(t, "newer", *stored.PasswordResetToken)

	require.NoError(t, repo.RevokeResetToken(ctx, u.ID, "newer"))
	stored, err = repo.FindByID(ctx, u.ID, model.ActiveOnly)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)

	require.NoError(t, repo.RevokeResetToken(ctx, "missing", "newer"))
}

func TestMemoryUserRepository_ListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryUserRepository()
	a := seedUser(t, repo, "a@x.com")
	seedUser(t, repo, "b@x.com")
	seedUser(t, repo, "c@x.com")

	users, total, err := repo.List(ctx, 1, 2, model.ActiveOnly)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, users, 2)

	users, _, err = repo.List(ctx, 5, 2, model.ActiveOnly)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, repo.Delete(ctx, a.ID))
	require.ErrorIs(t, repo.Delete(ctx, a.ID), model.ErrUserNotFound)
}
