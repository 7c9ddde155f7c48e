package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError aborts an operation before anything is written.
// Fields maps an input name (or finding key) to what is wrong with it.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError wraps ErrorRecordNotFound with the entity that was missing.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrorRecordNotFound }

func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// PersistenceError reports a failed store call.
// For multi-record operations Partial is true when some writes were applied;
// Applied and Pending list the record ids on each side.
type PersistenceError struct {
	Op      string
	Partial bool
	Applied []int
	Pending []int
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Partial {
		return fmt.Sprintf("%s partially applied (applied=%v pending=%v): %v", e.Op, e.Applied, e.Pending, e.Err)
	}
	return fmt.Sprintf("%s failed, nothing applied: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsPartial(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Partial
}
