package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Store sentinels. Store implementations wrap or return these so the service
// can map them onto HTTP semantics.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrStale          = errors.New("record changed concurrently")
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e ServiceError) Error() string {
	return e.Message
}

func ErrNotFound(msg string) error {
	return ServiceError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: msg}
}

func ErrBadRequest(msg string) error {
	return ServiceError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: msg}
}

func ErrValidation(fields map[string]string) error {
	return ServiceError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Validation failed", Fields: fields}
}

func ErrForbidden(msg string) error {
	return ServiceError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: msg}
}

func ErrUnauthorized(msg string) error {
	return ServiceError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: msg}
}

func ErrConflict(msg string) error {
	return ServiceError{Status: http.StatusConflict, Code: "CONFLICT", Message: msg}
}

func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// AsServiceError unwraps err into a ServiceError when it carries one.
func AsServiceError(err error) (ServiceError, bool) {
	var svcErr ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return ServiceError{}, false
}

// notFoundOr maps ErrRecordNotFound to a 404 and wraps anything else.
func notFoundOr(err error, what string) error {
	if errors.Is(err, ErrRecordNotFound) {
		return ErrNotFound(what + " not found")
	}
	return WrapError(err, "load "+what)
}
