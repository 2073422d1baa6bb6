package domain

import "errors"

var (
	// ErrUsernameTaken is returned when a case-insensitive match of the
	// username is already registered.
	ErrUsernameTaken = errors.New("username exists")

	// ErrUserNotFound is returned by user lookups that match nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNoteNotFound is returned when a note does not exist or belongs to
	// another owner.
	ErrNoteNotFound = errors.New("note not found")
)
