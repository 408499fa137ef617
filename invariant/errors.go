package invariant

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the validators and the relationship engine.
// Presentation layers map these with errors.Is.
var (
	// ErrNotFound is returned when a referenced member or family unit is absent.
	ErrNotFound = errors.New("familydir: not found")

	// ErrConflict is returned when an operation would violate a relationship invariant.
	ErrConflict = errors.New("familydir: conflict")

	// ErrValidation is returned for malformed input attributes.
	ErrValidation = errors.New("familydir: invalid input")

	// ErrInternal is returned for unexpected store failures. Mutations are
	// all-or-nothing, so callers may retry.
	ErrInternal = errors.New("familydir: internal error")
)

var (
	// ErrAlreadyExists is the conflict returned when the root is created twice.
	ErrAlreadyExists = fmt.Errorf("%w: already exists", ErrConflict)

	// ErrEmailTaken is the conflict returned when another member holds an email.
	ErrEmailTaken = fmt.Errorf("%w: email already in use", ErrConflict)
)
