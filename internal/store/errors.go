package store

import "errors"

var (
	// ErrNotFound is returned when a referenced asset or stack does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost a race with a
	// concurrent writer. The caller should re-read state and retry.
	ErrConflict = errors.New("write conflict")

	// ErrNotMember is returned when a primary asset is not a member of the stack.
	ErrNotMember = errors.New("asset is not a member of the stack")

	// ErrPrimaryAsset is returned when removing a stack's primary asset.
	ErrPrimaryAsset = errors.New("asset is the stack's primary")
)
