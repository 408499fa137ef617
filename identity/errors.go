package identity

import "errors"

var (
	// ErrNotBound is returned when a subject has no member binding.
	ErrNotBound = errors.New("identity: subject not bound")

	// ErrAlreadyBound is returned when a subject is bound to another member.
	ErrAlreadyBound = errors.New("identity: subject bound to another member")
)
