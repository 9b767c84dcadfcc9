package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go-tour-booking/internal/model"
	"go-tour-booking/internal/notify"
	"go-tour-booking/internal/util"
)

// UserStore is the identity store. Every read states explicitly whether
// inactive rows and the password hash are wanted.
type UserStore interface {
	FindByID(ctx context.Context, id string, opts model.ReadOptions) (model.User, error)
	FindByEmail(ctx context.Context, email string, opts model.ReadOptions) (model.User, error)
	Create(ctx context.Context, nu model.NewUser) (model.User, error)
	UpdateByID(ctx context.Context, id string, update model.UserUpdate) (model.User, error)
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, change model.PasswordChange) (model.User, error)
	RevokeResetToken(ctx context.Context, id string, tokenHash string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page int, limit int, opts model.ReadOptions) ([]model.User, int, error)
	Health(ctx context.Context) error
}

// Recorder observes account lifecycle outcomes.
type Recorder interface {
	AuthEvent(operation string, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// AuthService runs signup, login and the password lifecycle.
type AuthService struct {
	store        UserStore
	hasher       PasswordHasher
	tokens       *TokenIssuer
	resets       *ResetTokenService
	notifier     notify.Notifier
	logger       *slog.Logger
	recorder     Recorder
	resetURLBase string
	now          func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

func NewAuthService(
	store UserStore,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	resets *ResetTokenService,
	notifier notify.Notifier,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		resets:   resets,
		notifier: notifier,
		logger:   logger,
		recorder: nopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) WithRecorder(r Recorder) *AuthService {
	if r != nil {
		s.recorder = r
	}
	return s
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// WithResetURLBase sets the link prefix the plaintext reset token is appended to.
func (s *AuthService) WithResetURLBase(base string) *AuthService {
	s.resetURLBase = strings.TrimRight(base, "/")
	return s
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (model.AuthResult, error) {
	req.Name = util.SanitizeName(req.Name)
	if err := validateSignup(req); err != nil {
		s.recorder.AuthEvent("signup", "invalid")
		return model.AuthResult{}, validationError(err)
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	user, err := s.store.Create(ctx, model.NewUser{
		Name:         req.Name,
		Email:        req.Email,
		Role:         model.RoleUser,
		PasswordHash: digest,
	})
	if err != nil {
		s.recorder.AuthEvent("signup", "rejected")
		return model.AuthResult{}, storeError(err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)
	s.recorder.AuthEvent("signup", "success")
	return s.issue(user)
}

// Login fails with the same error whether the email is unknown or the
// password is wrong. Unknown emails still pay for one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return model.AuthResult{}, validationError(fmt.Errorf("%w: please provide email and password", model.ErrValidation))
	}

	user, err := s.store.FindByEmail(ctx, req.Email, model.ActiveWithPassword)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.Verify(req.Password, s.dummyHash())
		s.recorder.AuthEvent("login", "failure")
		return model.AuthResult{}, Fail(model.ErrInvalidCredentials, "")
	}
	if err != nil {
		return model.AuthResult{}, storeError(err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.recorder.AuthEvent("login", "failure")
		return model.AuthResult{}, Fail(model.ErrInvalidCredentials, "")
	}

	user.PasswordHash = ""
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	s.recorder.AuthEvent("login", "success")
	return s.issue(user)
}

// ForgotPassword stores a fresh reset token and sends its plaintext to the
// account's address. An unknown email returns nil, exactly like success, so
// callers cannot probe for registered addresses.
func (s *AuthService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return validationError(fmt.Errorf("%w: please provide an email", model.ErrValidation))
	}

	user, err := s.store.FindByEmail(ctx, req.Email, model.ActiveOnly)
	if errors.Is(err, model.ErrUserNotFound) {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		s.recorder.AuthEvent("forgot_password", "unknown_email")
		return nil
	}
	if err != nil {
		return storeError(err)
	}

	token, err := s.resets.Generate()
	if err != nil {
		return err
	}

	if _, err := s.store.UpdateByID(ctx, user.ID, model.ResetTokenIssue{
		TokenHash: token.Hash,
		ExpiresAt: token.ExpiresAt,
	}); err != nil {
		return storeError(err)
	}

	sendErr := s.notifier.SendPasswordReset(ctx, notify.ResetMessage{
		To:        user.Email,
		Name:      user.Name,
		ResetURL:  s.resetURLBase + "/" + token.Plaintext,
		ExpiresAt: token.ExpiresAt,
	})
	if sendErr == nil {
		s.logger.InfoContext(ctx, "password reset token sent", "user_id", user.ID)
		s.recorder.AuthEvent("forgot_password", "success")
		return nil
	}

	// The request may already be cancelled; the rollback must still land. Only
	// this request's token is revoked.
	rollbackCtx := context.WithoutCancel(ctx)
	if err := s.store.RevokeResetToken(rollbackCtx, user.ID, token.Hash); err != nil {
		s.logger.ErrorContext(ctx, "failed to roll back reset token", "user_id", user.ID, "error", err)
	}

	s.logger.ErrorContext(ctx, "failed to send password reset", "user_id", user.ID, "error", sendErr)
	s.recorder.AuthEvent("forgot_password", "notify_failed")
	return wrapAs(model.ErrOperationFailed, sendErr, "there was an error sending the email, try again later")
}

// ResetPassword consumes a reset token and sets a new password in the same
// store write. The new password is hashed first so a hashing failure does not
// burn the token.
func (s *AuthService) ResetPassword(ctx context.Context, plaintext string, req model.ResetPasswordRequest) (model.AuthResult, error) {
	if err := model.ValidatePassword(req.Password, req.PasswordConfirm); err != nil {
		return model.AuthResult{}, validationError(err)
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	user, err := s.resets.Consume(ctx, plaintext, model.PasswordChange{
		PasswordHash: digest,
		ChangedAt:    s.passwordChangedAt(),
	})
	if errors.Is(err, model.ErrInvalidOrExpiredResetToken) {
		s.recorder.AuthEvent("reset_password", "invalid_token")
		return model.AuthResult{}, err
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	s.recorder.AuthEvent("reset_password", "success")
	return s.issue(user)
}

// UpdatePassword changes the password of an identity already resolved by the
// session guard. Every token issued before the change stops working.
func (s *AuthService) UpdatePassword(ctx context.Context, identity model.User, req model.UpdatePasswordRequest) (model.AuthResult, error) {
	if req.PasswordCurrent == "" {
		return model.AuthResult{}, validationError(fmt.Errorf("%w: please provide your current password", model.ErrValidation))
	}
	if err := model.ValidatePassword(req.Password, req.PasswordConfirm); err != nil {
		return model.AuthResult{}, validationError(err)
	}

	user, err := s.store.FindByID(ctx, identity.ID, model.ActiveWithPassword)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.AuthResult{}, Fail(model.ErrUserNoLongerExists, "")
	}
	if err != nil {
		return model.AuthResult{}, storeError(err)
	}

	if !s.hasher.Verify(req.PasswordCurrent, user.PasswordHash) {
		s.recorder.AuthEvent("update_password", "failure")
		return model.AuthResult{}, wrapAs(model.ErrInvalidCredentials, model.ErrInvalidCredentials, "your current password is wrong")
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	user, err = s.store.UpdateByID(ctx, user.ID, model.PasswordChange{
		PasswordHash: digest,
		ChangedAt:    s.passwordChangedAt(),
	})
	if err != nil {
		return model.AuthResult{}, storeError(err)
	}

	s.logger.InfoContext(ctx, "password updated", "user_id", user.ID)
	s.recorder.AuthEvent("update_password", "success")
	return s.issue(user)
}

func (s *AuthService) issue(user model.User) (model.AuthResult, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.AuthResult{}, err
	}
	return model.AuthResult{Token: token, User: user}, nil
}

// passwordChangedAt sits one tick before now, so the token issued right after
// the change is not already stale while every token issued in an earlier tick
// is.
func (s *AuthService) passwordChangedAt() time.Time {
	return s.now().Truncate(model.TimestampPrecision).Add(-model.TimestampPrecision)
}

func (s *AuthService) dummyHash() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

func validateSignup(req model.SignupRequest) error {
	if err := model.ValidateName(req.Name); err != nil {
		return err
	}
	if err := model.ValidateEmail(req.Email); err != nil {
		return err
	}
	return model.ValidatePassword(req.Password, req.PasswordConfirm)
}
