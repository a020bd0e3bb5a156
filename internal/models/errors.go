package models

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNetwork         = errors.New("server unreachable")
	ErrServer          = errors.New("server rejected request")
	ErrUnauthorized    = errors.New("credential rejected")
	ErrNotFound        = errors.New("not found")
	ErrBookingConflict = errors.New("booking conflict")
	ErrStateConflict   = errors.New("action not allowed in current state")
	ErrInvalidFee      = errors.New("invalid fee")
	ErrInvalidResponse = errors.New("invalid server response")
	ErrCancelled       = errors.New("cancelled by user")
)

// ServerError is returned when the server was reached but refused the request.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error: status %d", e.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Message)
}

func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrServer:
		return true
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrBookingConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage picks the most specific text to show for err, preferring a
// server-provided message over the fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.Message != "" {
		return serverErr.Message
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) && validationErr.Message != "" {
		return validationErr.Message
	}
	if errors.Is(err, ErrInvalidFee) {
		return "Total fee is zero. Please contact pharmacy if this is an error."
	}
	return fallback
}

// Silent reports errors that describe a no-op rather than a failure.
func Silent(err error) bool {
	return errors.Is(err, ErrStateConflict) || errors.Is(err, ErrCancelled)
}
