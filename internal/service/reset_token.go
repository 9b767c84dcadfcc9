package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"time"

	"go-tour-booking/internal/model"
)

const (
	ResetTokenTTL   = 10 * time.Minute
	resetTokenBytes = 32
)

// ResetToken is a freshly generated reset credential. Plaintext leaves the
// process exactly once; only Hash is stored.
type ResetToken struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

type resetTokenConsumer interface {
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time, change model.PasswordChange) (model.User, error)
}

type ResetTokenService struct {
	store  resetTokenConsumer
	now    func() time.Time
	random io.Reader
}

func NewResetTokenService(store resetTokenConsumer, now func() time.Time) *ResetTokenService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ResetTokenService{store: store, now: now, random: rand.Reader}
}

func (s *ResetTokenService) Generate() (ResetToken, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return ResetToken{}, wrapAs(model.ErrOperationFailed, err, "")
	}

	plaintext := hex.EncodeToString(buf)
	return ResetToken{
		Plaintext: plaintext,
		Hash:      HashResetToken(plaintext),
		ExpiresAt: s.now().Add(ResetTokenTTL),
	}, nil
}

// Consume atomically applies change to the user holding plaintext, clears
// the reset fields and returns the updated user. It fails with
// ErrInvalidOrExpiredResetToken when no active user holds an unexpired
// matching token.
func (s *ResetTokenService) Consume(ctx context.Context, plaintext string, change model.PasswordChange) (model.User, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return model.User{}, Fail(model.ErrInvalidOrExpiredResetToken, "")
	}

	u, err := s.store.ConsumeResetToken(ctx, HashResetToken(plaintext), s.now(), change)
	if errors.Is(err, model.ErrInvalidOrExpiredResetToken) {
		return model.User{}, Fail(model.ErrInvalidOrExpiredResetToken, "")
	}
	if err != nil {
		return model.User{}, storeError(err)
	}
	return u, nil
}

func HashResetToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
