package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"go-tour-booking/internal/model"
)

const DefaultBcryptCost = 12

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, digest string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", validationError(fmt.Errorf("%w: password must be at most 72 bytes", model.ErrValidation))
	}
	if err != nil {
		return "", wrapAs(model.ErrOperationFailed, err, "")
	}
	return string(digest), nil
}

// Verify uses bcrypt's constant-time comparison. A malformed digest never
// matches.
func (h *BcryptHasher) Verify(plaintext string, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
