package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated   = errors.New("session is unauthenticated")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNoRefreshToken    = errors.New("no refresh token available")
	ErrRefreshRejected   = errors.New("refresh token rejected")
	ErrRefreshFailed     = errors.New("token refresh failed")
	ErrTimeout           = errors.New("request timed out")
	ErrMalformedResponse = errors.New("malformed response")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token has expired")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrAccountExists     = errors.New("account already exists")
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is maps well-known status codes onto sentinel errors so callers can use errors.Is
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// StatusCode returns the HTTP status of err if it carries an APIError, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
