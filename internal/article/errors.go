package article

import (
	"errors"
	"net/http"
)

// HTTPError is implemented by every domain error so the transport layer can
// map it to a status code without a type switch.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinels for errors.Is.
var (
	ErrNotFound        = errors.New("article not found")
	ErrVersionConflict = errors.New("stored version differs")

	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrCollaborator = errors.New("collaborator failed")
)

// ValidationError is a caller input problem. Not retryable without changing
// the request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string        { return e.Message }
func (e *ValidationError) StatusCode() int      { return http.StatusBadRequest }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a stale write. The caller re-fetches and resubmits.
type ConflictError struct {
	Message string
	Field   string
}

func (e *ConflictError) Error() string        { return e.Message }
func (e *ConflictError) StatusCode() int      { return http.StatusConflict }
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AuthorizationError is returned when someone other than the author edits a comment.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string        { return e.Message }
func (e *AuthorizationError) StatusCode() int      { return http.StatusForbidden }
func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// CollaboratorError wraps a failure of a dependency consulted before
// persistence (link expansion, container lookup).
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error        { return e.Err }
func (e *CollaboratorError) StatusCode() int      { return http.StatusBadGateway }
func (e *CollaboratorError) Is(target error) bool { return target == ErrCollaborator }

// ErrAuditIncomplete marks a committed edit whose change records could not
// all be stored.
var ErrAuditIncomplete = errors.New("change records incomplete")

// AuditError is returned after a successful write when appending change
// records failed. The edit itself is stored; callers must not treat it as
// a rejection.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string        { return "edit stored, change log incomplete: " + e.Err.Error() }
func (e *AuditError) Unwrap() error        { return e.Err }
func (e *AuditError) Is(target error) bool { return target == ErrAuditIncomplete }
