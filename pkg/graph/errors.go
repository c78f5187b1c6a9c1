package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingID is returned when a record without an id is constructed for a
	// model with auto-id disabled.
	ErrMissingID = errors.New("missing required id")
	// ErrTypeMismatch is returned when a record of the wrong type is assigned to
	// a reference with a declared target type.
	ErrTypeMismatch = errors.New("reference type mismatch")
	// ErrImmutableExternalRef is returned when an external reference is assigned.
	ErrImmutableExternalRef = errors.New("external reference is read-only")
	// ErrImmutableID is returned when a record's id is changed after construction.
	ErrImmutableID = errors.New("id cannot change once set")
	// ErrUnknownTarget is returned when a runtime reference has no target type.
	ErrUnknownTarget = errors.New("reference target type unknown")
	// ErrDetached is returned when a nested object has to be upserted but the
	// record has no registry and the object carries no id.
	ErrDetached = errors.New("record is not held by a registry")
)

// MissingIDError reports the model and attribute that lacked an id.
type MissingIDError struct {
	Type      string
	Attribute string
}

func (e MissingIDError) Error() string {
	return fmt.Sprintf("%s.%s is required", e.Type, e.Attribute)
}

func (e MissingIDError) Is(target error) bool { return target == ErrMissingID }

// TypeMismatchError carries the reference field and the offending types.
type TypeMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("reference %q expects %s, got %s", e.Field, e.Want, e.Got)
}

func (e TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// FieldError ties a rejected mutation to the record and field it targeted.
type FieldError struct {
	Type  string
	ID    any
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %v: %s: %v", e.Type, e.ID, e.Field, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }
