package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-tour-booking/internal/model"
)

// TokenClaims is what a verified session token asserts.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// sessionClaims adds iat_us, the issue time in microseconds. The registered
// iat claim has whole-second resolution, too coarse to order a token against
// a password change made in the same second.
type sessionClaims struct {
	jwt.RegisteredClaims
	IssuedAtMicros int64 `json:"iat_us"`
}

// TokenIssuer signs and verifies stateless HS256 session tokens with a single
// static secret. There is no key rotation.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for iat, exp and validation.
func (i *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	i.now = now
	return i
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

func (i *TokenIssuer) Issue(subject string) (string, error) {
	now := i.now().Truncate(model.TimestampPrecision)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		IssuedAtMicros: now.UnixMicro(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", wrapAs(model.ErrOperationFailed, err, "")
	}
	return signed, nil
}

func (i *TokenIssuer) Verify(token string) (TokenClaims, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return TokenClaims{}, Fail(model.ErrTokenExpired, "")
	}
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return TokenClaims{}, Fail(model.ErrInvalidToken, "")
	}

	// iat_us must agree with iat to the second.
	issuedAt := time.UnixMicro(claims.IssuedAtMicros).UTC()
	if claims.IssuedAtMicros <= 0 || issuedAt.Unix() != claims.IssuedAt.Unix() {
		return TokenClaims{}, Fail(model.ErrInvalidToken, "")
	}

	return TokenClaims{
		Subject:   claims.Subject,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}
