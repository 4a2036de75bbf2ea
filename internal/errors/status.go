package errors

import (
	"context"
	"errors"
	"net/http"
)

// FromHTTPStatus maps an upstream HTTP status to an AppError carrying message.
func FromHTTPStatus(status int, message string) *AppError {
	if message == "" {
		message = http.StatusText(status)
	}
	switch status {
	case http.StatusNotFound:
		return New(ErrCodeNotFound, message)
	case http.StatusConflict:
		return New(ErrCodeConflict, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return New(ErrCodeValidation, message)
	case http.StatusUnauthorized:
		return New(ErrCodeUnauthorized, message)
	case http.StatusForbidden:
		return New(ErrCodeForbidden, message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return New(ErrCodeUnavailable, message)
	default:
		return New(ErrCodeInternal, message)
	}
}

// FromTransport classifies a transport-level failure.
func FromTransport(err error, message string) *AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, message)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, message)
	default:
		return Wrap(err, ErrCodeUnavailable, message)
	}
}

// HTTPStatus returns the HTTP status a handler should answer with for err.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeRegistrationRequired:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnavailable:
		return http.StatusBadGateway
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
