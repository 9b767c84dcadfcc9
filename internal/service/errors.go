package service

import (
	"errors"
	"fmt"
	"net/http"

	"go-tour-booking/internal/model"
	"go-tour-booking/pkg/apierror"
)

type errorKind struct {
	code    string
	message string
	status  int
}

var errorTable = map[error]errorKind{
	model.ErrValidation:                 {"VALIDATION_ERROR", "invalid input data", http.StatusBadRequest},
	model.ErrInvalidCredentials:         {"INVALID_CREDENTIALS", "incorrect email or password", http.StatusUnauthorized},
	model.ErrNotAuthenticated:           {"NOT_AUTHENTICATED", "you are not logged in, please log in to get access", http.StatusUnauthorized},
	model.ErrInvalidToken:               {"INVALID_TOKEN", "invalid token, please log in again", http.StatusUnauthorized},
	model.ErrTokenExpired:               {"TOKEN_EXPIRED", "your token has expired, please log in again", http.StatusUnauthorized},
	model.ErrForbidden:                  {"FORBIDDEN", "you do not have permission to perform this action", http.StatusForbidden},
	model.ErrInvalidOrExpiredResetToken: {"INVALID_RESET_TOKEN", "token is invalid or has expired", http.StatusBadRequest},
	model.ErrUserNoLongerExists:         {"USER_NO_LONGER_EXISTS", "the user belonging to this token no longer exists", http.StatusUnauthorized},
	model.ErrStalePasswordChange:        {"STALE_PASSWORD_CHANGE", "user recently changed password, please log in again", http.StatusUnauthorized},
	model.ErrOperationFailed:            {"OPERATION_FAILED", "something went wrong, please try again later", http.StatusInternalServerError},
	model.ErrUserNotFound:               {"NOT_FOUND", "no user found with that id", http.StatusNotFound},
}

// Fail returns the APIError registered for a model sentinel.
func Fail(kind error, details string) error {
	return wrapAs(kind, kind, details)
}

// wrapAs renders cause with the code and status of kind. cause should wrap
// kind so errors.Is keeps working on the result.
func wrapAs(kind error, cause error, details string) error {
	entry, ok := errorTable[kind]
	if !ok {
		entry = errorTable[model.ErrOperationFailed]
	}
	if cause != kind && !errors.Is(cause, kind) {
		cause = fmt.Errorf("%w: %w", kind, cause)
	}
	return apierror.Wrap(cause, entry.code, entry.message, details, entry.status)
}

func validationError(err error) error {
	return wrapAs(model.ErrValidation, err, err.Error())
}

// storeError passes classified errors through and folds everything else into
// OperationFailed.
func storeError(err error) error {
	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, model.ErrValidation):
		return validationError(err)
	case errors.Is(err, model.ErrUserNotFound):
		return wrapAs(model.ErrUserNotFound, err, "")
	case errors.Is(err, model.ErrInvalidOrExpiredResetToken):
		return wrapAs(model.ErrInvalidOrExpiredResetToken, err, "")
	default:
		return wrapAs(model.ErrOperationFailed, err, "")
	}
}
