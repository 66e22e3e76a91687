// Package apperr defines the error taxonomy use cases return at their
// boundaries instead of raising arbitrary errors. Adapters translate
// upstream failures into this taxonomy at the edge; routers translate it
// into HTTP problem responses (out of scope here).
package apperr

import "fmt"

// Code is one of the fixed taxonomy values a use case can fail with.
type Code string

const (
	CodeNotFound       Code = "NOT_FOUND"
	CodeForbidden      Code = "FORBIDDEN"
	CodeConflict       Code = "CONFLICT"
	CodeValidation     Code = "VALIDATION"
	CodeEmbeddingError Code = "EMBEDDING_ERROR"
	CodeLLMError       Code = "LLM_ERROR"
	CodeStorageError   Code = "STORAGE_ERROR"
	CodeDBError        Code = "DB_ERROR"
	CodeTimeout        Code = "TIMEOUT"
	CodeInternal       Code = "INTERNAL"
)

// Error carries a taxonomy code, a human-readable message and the identifier
// of the resource the failure concerns (empty when not applicable).
type Error struct {
	Code       Code
	Message    string
	ResourceID string
	cause      error
}

func (e *Error) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s: %s (resource=%s)", e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error that chains an underlying cause via errors.Unwrap.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithResource returns a copy of e with ResourceID set.
func (e *Error) WithResource(id string) *Error {
	cp := *e
	cp.ResourceID = id
	return &cp
}

func NotFound(message, resourceID string) *Error {
	return &Error{Code: CodeNotFound, Message: message, ResourceID: resourceID}
}

func Forbidden(message, resourceID string) *Error {
	return &Error{Code: CodeForbidden, Message: message, ResourceID: resourceID}
}

func Conflict(message, resourceID string) *Error {
	return &Error{Code: CodeConflict, Message: message, ResourceID: resourceID}
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// CodeOf extracts the taxonomy code from err, defaulting to CodeInternal for
// errors that were never classified.
func CodeOf(err error) Code {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code
	}
	return CodeInternal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
