package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-tour-booking/internal/model"
	"go-tour-booking/internal/notify"
	"go-tour-booking/internal/repository"
	"go-tour-booking/pkg/apierror"
)

func signup(t *testing.T, f *authFixture, email string, password string) model.AuthResult {
	t.Helper()

	res, err := f.service.Signup(context.Background(), model.SignupRequest{
		Name:            "Jonas",
		Email:           email,
		Password:        password,
		PasswordConfirm: password,
	})
	require.NoError(t, err)
	return res
}

func statusOf(t *testing.T, err error) int {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.HTTPStatus
}

func TestAuthService_Signup(t *testing.T) {
	t.Parallel()

	t.Run("creates a user with the default role and a token", func(t *testing.T) {
		f := newAuthFixture(t)

		res := signup(t, f, "A@X.com", "secret123")

		assert.NotEmpty(t, res.Token)
		assert.Equal(t, model.RoleUser, res.User.Role)
		assert.Equal(t, "a@x.com", res.User.Email)
		assert.Empty(t, res.User.PasswordHash)
		assert.Nil(t, res.User.PasswordChangedAt)

		claims, err := f.tokens.Verify(res.Token)
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, claims.Subject)

		stored, err := f.store.FindByID(context.Background(), res.User.ID, model.ActiveWithPassword)
		require.NoError(t, err)
		assert.NotEqual(t, "secret123", stored.PasswordHash)
		assert.True(t, f.recorder.has("signup", "success"))
	})

	tests := []struct {
		name string
		req  model.SignupRequest
	}{
		{name: "mismatched confirmation", req: model.SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123", PasswordConfirm: "secret124"}},
		{name: "short password", req: model.SignupRequest{Name: "A", Email: "a@x.com", Password: "short", PasswordConfirm: "short"}},
		{name: "missing name", req: model.SignupRequest{Name: " ", Email: "a@x.com", Password: "secret123", PasswordConfirm: "secret123"}},
		{name: "bad email", req: model.SignupRequest{Name: "A", Email: "not-an-email", Password: "secret123", PasswordConfirm: "secret123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)

			_, err := f.service.Signup(context.Background(), tt.req)
			require.ErrorIs(t, err, model.ErrValidation)
			assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		f := newAuthFixture(t)
		signup(t, f, "a@x.com", "secret123")

		_, err := f.service.Signup(context.Background(), model.SignupRequest{
			Name: "Other", Email: "A@x.com", Password: "secret123", PasswordConfirm: "secret123",
		})
		require.ErrorIs(t, err, model.ErrValidation)
		require.ErrorIs(t, err, model.ErrUserAlreadyExists)
		assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
	})
}

func TestAuthService_LoginDoesNotRevealWhichPartFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	signup(t, f, "a@x.com", "secret123")

	_, wrongPassword := f.service.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "wrong-pass"})
	_, unknownEmail := f.service.Login(ctx, model.LoginRequest{Email: "nobody@x.com", Password: "secret123"})

	require.ErrorIs(t, wrongPassword, model.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, model.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, wrongPassword))
	assert.Equal(t, statusOf(t, wrongPassword), statusOf(t, unknownEmail))

	res, err := f.service.Login(ctx, model.LoginRequest{Email: " A@x.COM ", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Empty(t, res.User.PasswordHash)

	_, err = f.service.Login(ctx, model.LoginRequest{Email: "a@x.com"})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestAuthService_LoginRejectsDeactivatedUsers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	res := signup(t, f, "a@x.com", "secret123")
	_, err := f.store.UpdateByID(ctx, res.User.ID, model.Deactivation{})
	require.NoError(t, err)

	_, err = f.service.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "secret123"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestAuthService_ForgotPasswordUnknownEmail(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)

	err := f.service.ForgotPassword(context.Background(), model.ForgotPasswordRequest{Email: "nobody@x.com"})
	require.NoError(t, err)
	f.notifier.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything)
	assert.True(t, f.recorder.has("forgot_password", "unknown_email"))
}

func TestAuthService_ForgotAndResetPassword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	user := signup(t, f, "a@x.com", "secret123").User

	var sent notify.ResetMessage
	f.notifier.On("SendPasswordReset", mock.Anything, mock.MatchedBy(func(msg notify.ResetMessage) bool {
		return msg.To == "a@x.com"
	})).Run(func(args mock.Arguments) {
		sent = args.Get(1).(notify.ResetMessage)
	}).Return(nil).Once()

	require.NoError(t, f.service.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "a@x.com"}))
	f.notifier.AssertExpectations(t)

	prefix := "http://localhost/api/v1/users/resetPassword/"
	require.True(t, strings.HasPrefix(sent.ResetURL, prefix))
	plaintext := strings.TrimPrefix(sent.ResetURL, prefix)
	assert.True(t, f.clock.Now().Add(ResetTokenTTL).Equal(sent.ExpiresAt))

	stored, err := f.store.FindByID(ctx, user.ID, model.ActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetToken)
	assert.Equal(t, HashResetToken(plaintext), *stored.PasswordResetToken)

	f.clock.Advance(time.Millisecond)
	res, err := f.service.ResetPassword(ctx, plaintext, model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "newpass12"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, res.User.PasswordChangedAt)
	assert.Nil(t, res.User.PasswordResetToken)

	claims, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.False(t, res.User.ChangedPasswordAfter(claims.IssuedAt))

	_, err = f.service.ResetPassword(ctx, plaintext, model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "newpass12"})
	require.ErrorIs(t, err, model.ErrInvalidOrExpiredResetToken)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.service.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "secret123"})
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "newpass12"})
	require.NoError(t, err)
}

func TestAuthService_ResetPasswordValidatesBeforeConsuming(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	user := signup(t, f, "a@x.com", "secret123").User

	token, err := f.service.resets.Generate()
	require.NoError(t, err)
	_, err = f.store.UpdateByID(ctx, user.ID, model.ResetTokenIssue{TokenHash: token.Hash, ExpiresAt: token.ExpiresAt})
	require.NoError(t, err)

	_, err = f.service.ResetPassword(ctx, token.Plaintext, model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "different"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.service.ResetPassword(ctx, token.Plaintext, model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "newpass12"})
	require.NoError(t, err)
}

func TestAuthService_ForgotPasswordRollsBackWhenDeliveryFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	user := signup(t, f, "a@x.com", "secret123").User

	f.notifier.On("SendPasswordReset", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	err := f.service.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "a@x.com"})
	require.ErrorIs(t, err, model.ErrOperationFailed)
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	stored, err := f.store.FindByID(ctx, user.ID, model.ActiveOnly)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)
	assert.True(t, f.recorder.has("forgot_password", "notify_failed"))
}

func TestAuthService_ForgotPasswordRollbackKeepsNewerToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	user := signup(t, f, "a@x.com", "secret123").User
	newerExpiry := f.clock.Now().Add(ResetTokenTTL)

	// A second request stores its token while the first one is still delivering.
	f.notifier.On("SendPasswordReset", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		_, err := f.store.UpdateByID(ctx, user.ID, model.ResetTokenIssue{TokenHash: "newer", ExpiresAt: newerExpiry})
		require.NoError(t, err)
	}).Return(errors.New("smtp down")).Once()

	err := f.service.ForgotPassword(ctx, model.ForgotPasswordRequest{Email: "a@x.com"})
	require.ErrorIs(t, err, model.ErrOperationFailed)

	stored, err := f.store.FindByID(ctx, user.ID, model.ActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetToken)
	assert.Equal(t, "newer", *stored.PasswordResetToken)
}

// updateRejectingStore fails every UpdateByID.
type updateRejectingStore struct {
	*repository.MemoryUserRepository
}

func (updateRejectingStore) UpdateByID(context.Context, string, model.UserUpdate) (model.User, error) {
	return model.User{}, errors.New("connection reset")
}

// consumeFailingStore fails ConsumeResetToken until failures reaches zero.
type consumeFailingStore struct {
	*repository.MemoryUserRepository
	failures int
}

func (s *consumeFailingStore) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, change model.PasswordChange) (model.User, error) {
	if s.failures > 0 {
		s.failures--
		return model.User{}, errors.New("connection reset")
	}
	return s.MemoryUserRepository.ConsumeResetToken(ctx, tokenHash, now, change)
}

func newServiceOver(t *testing.T, store UserStore, clock *fakeClock) *AuthService {
	t.Helper()

	return NewAuthService(
		store,
		NewBcryptHasher(bcrypt.MinCost),
		NewTokenIssuer(testSecret, time.Hour).WithClock(clock.Now),
		NewResetTokenService(store, clock.Now),
		&mockNotifier{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	).WithClock(clock.Now)
}

func storeResetToken(t *testing.T, svc *AuthService, mem *repository.MemoryUserRepository, userID string) ResetToken {
	t.Helper()

	token, err := svc.resets.Generate()
	require.NoError(t, err)
	_, err = mem.UpdateByID(context.Background(), userID, model.ResetTokenIssue{TokenHash: token.Hash, ExpiresAt: token.ExpiresAt})
	require.NoError(t, err)
	return token
}

func TestAuthService_ResetPasswordWritesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	mem := repository.NewMemoryUserRepository()
	svc := newServiceOver(t, updateRejectingStore{mem}, clock)

	res, err := svc.Signup(ctx, model.SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123", PasswordConfirm: "secret123"})
	require.NoError(t, err)
	token := storeResetToken(t, svc, mem, res.User.ID)

	clock.Advance(time.Millisecond)
	reset, err := svc.ResetPassword(ctx, token.Plaintext, model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "newpass12"})
	require.NoError(t, err)
	require.NotNil(t, reset.User.PasswordChangedAt)

	_, err = svc.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "newpass12"})
	require.NoError(t, err)
}

func TestAuthService_ResetPasswordStoreFailureKeepsToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	mem := repository.NewMemoryUserRepository()
	store := &consumeFailingStore{MemoryUserRepository: mem, failures: 1}
	svc := newServiceOver(t, store, clock)

	res, err := svc.Signup(ctx, model.SignupRequest{Name: "A", Email: "a@x.com", Password: "secret123", PasswordConfirm: "secret123"})
	require.NoError(t, err)
	token := storeResetToken(t, svc, mem, res.User.ID)

	req := model.ResetPasswordRequest{Password: "newpass12", PasswordConfirm: "newpass12"}
	_, err = svc.ResetPassword(ctx, token.Plaintext, req)
	require.ErrorIs(t, err, model.ErrOperationFailed)
	assert.Equal(t, http.StatusInternalServerError, statusOf(t, err))

	_, err = svc.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err, "old password still works after a failed reset")

	_, err = svc.ResetPassword(ctx, token.Plaintext, req)
	require.NoError(t, err, "token survives a failed reset")
}

func TestAuthService_UpdatePassword(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newAuthFixture(t)
	first := signup(t, f, "a@x.com", "secret123")

	t.Run("wrong current password", func(t *testing.T) {
		_, err := f.service.UpdatePassword(ctx, first.User, model.UpdatePasswordRequest{
			PasswordCurrent: "nope-nope", Password: "newpass12", PasswordConfirm: "newpass12",
		})
		require.ErrorIs(t, err, model.ErrInvalidCredentials)
		assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
	})

	t.Run("mismatched confirmation", func(t *testing.T) {
		_, err := f.service.UpdatePassword(ctx, first.User, model.UpdatePasswordRequest{
			PasswordCurrent: "secret123", Password: "newpass12", PasswordConfirm: "newpass13",
		})
		require.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("invalidates earlier tokens and issues a fresh one", func(t *testing.T) {
		f.clock.Advance(500 * time.Millisecond)

		second, err := f.service.UpdatePassword(ctx, first.User, model.UpdatePasswordRequest{
			PasswordCurrent: "secret123", Password: "newpass12", PasswordConfirm: "newpass12",
		})
		require.NoError(t, err)
		require.NotNil(t, second.User.PasswordChangedAt)

		oldClaims, err := f.tokens.Verify(first.Token)
		require.NoError(t, err)
		newClaims, err := f.tokens.Verify(second.Token)
		require.NoError(t, err)

		assert.True(t, second.User.ChangedPasswordAfter(oldClaims.IssuedAt))
		assert.False(t, second.User.ChangedPasswordAfter(newClaims.IssuedAt))
	})
}
