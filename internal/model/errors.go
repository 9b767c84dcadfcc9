package model

import "errors"

var (
	// Identity errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Session errors
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrUserNoLongerExists  = errors.New("user no longer exists")
	ErrStalePasswordChange = errors.New("password changed after token was issued")
	ErrForbidden           = errors.New("forbidden")

	// Password reset errors
	ErrInvalidOrExpiredResetToken = errors.New("reset token is invalid or has expired")

	// Generic errors
	ErrValidation      = errors.New("validation failed")
	ErrOperationFailed = errors.New("operation failed")
)
