package app

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindInvalid          Kind = "INVALID"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindConflict         Kind = "CONFLICT"
	KindExpired          Kind = "EXPIRED"
	KindInvalidSignature Kind = "INVALID_SIGNATURE"
	KindUnavailable      Kind = "UNAVAILABLE"
	KindInternal         Kind = "INTERNAL"
)

type DomainError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(kind Kind, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Status:  statusForKind(kind),
		Code:    string(kind),
		Message: message,
	}
}

// Conflicts and token failures are client errors in the public API, so they
// share 400 with validation failures.
func statusForKind(kind Kind) int {
	switch kind {
	case KindInvalid, KindConflict, KindExpired, KindInvalidSignature:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func invalid(message string) error          { return domainError(KindInvalid, message) }
func notFound(message string) error         { return domainError(KindNotFound, message) }
func forbidden(message string) error        { return domainError(KindForbidden, message) }
func conflict(message string) error         { return domainError(KindConflict, message) }
func expired(message string) error          { return domainError(KindExpired, message) }
func invalidSignature(message string) error { return domainError(KindInvalidSignature, message) }
func unavailable(message string) error      { return domainError(KindUnavailable, message) }

// KindOf returns the domain kind of err, or KindInternal for anything that is
// not a DomainError.
func KindOf(err error) Kind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return KindInternal
}
