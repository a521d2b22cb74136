package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across stores and services.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate identifier")
)

// ValidationError aggregates every offending field of a malformed input so
// the caller sees the whole list at once.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError from field->reason pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// DuplicateError is a unique-identifier collision on case creation. The
// matching pipeline treats it as a benign no-op; direct case store callers
// treat it as a hard error.
type DuplicateError struct {
	SourceAckNo string
	ExistingID  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("case already exists for ack %q", e.SourceAckNo)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// TransitionError is an illegal assignment/approval transition. Rule names
// the specific business rule that was violated; rejections must never be
// generic.
type TransitionError struct {
	Rule  string
	Actor string
}

func (e *TransitionError) Error() string {
	if e.Actor != "" {
		return fmt.Sprintf("transition rejected for %s: %s", e.Actor, e.Rule)
	}
	return "transition rejected: " + e.Rule
}

// DependencyError wraps an identity or ledger lookup failure. The pipeline
// degrades it to "no match" rather than propagating it.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDuplicate reports whether err is a duplicate-identifier collision.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
