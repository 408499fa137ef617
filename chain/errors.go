package chain

import "errors"

var (
	// ErrEmpty is returned when no token has been appended yet.
	ErrEmpty = errors.New("chain: no tokens")

	// ErrNoMembers is returned by Append when there is nothing to record.
	ErrNoMembers = errors.New("chain: no members to record")

	// ErrInvalidCursor is returned for a cursor that cannot be decoded.
	ErrInvalidCursor = errors.New("chain: invalid cursor")

	// ErrCursorExpired is returned when a cursor's token has been collected.
	// The client must fall back to a full sync.
	ErrCursorExpired = errors.New("chain: cursor expired")

	// ErrCycle is returned when following next pointers revisits a token.
	ErrCycle = errors.New("chain: cycle detected")

	// ErrBroken is returned when a next pointer names a missing token.
	ErrBroken = errors.New("chain: broken link")
)
