package resource

import (
	"errors"
	"strings"
)

// Outcome taxonomy. Every precondition failure is one of these typed values
// so callers can switch exhaustively; only store-level failures propagate as
// anything else.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("caller is not the resource creator")
	ErrDuplicateTitle  = errors.New("title is already in use")
	ErrInvalidCapacity = errors.New("capacity is below the active participant count")

	ErrCreatorCannotJoin = errors.New("creator cannot join their own resource")
	ErrNotActive         = errors.New("resource is not active")
	ErrAlreadyJoined     = errors.New("user is already an active participant")
	ErrFull              = errors.New("resource is at capacity")
	ErrNotJoined         = errors.New("user has no active participation")

	// ErrNoMatch is returned by Store conditional updates when the predicate
	// matched no document. It is diagnostic input for the services, never a
	// caller-visible outcome.
	ErrNoMatch = errors.New("no document matched the update predicate")
)

// FieldError is one field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError accumulates field-level validation failures.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Merge appends the fields of err into the accumulator. The Validate*
// helpers only ever produce *ValidationError, so err is either nil or one.
func (e *ValidationError) Merge(err error) {
	var v *ValidationError
	if errors.As(err, &v) {
		e.Fields = append(e.Fields, v.Fields...)
	}
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}
