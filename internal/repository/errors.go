package repository

import "errors"

var (
	// ErrVersionConflict reports that a conditional update matched no row:
	// either the row is gone or its guard column changed under us. Callers
	// translate this to a conflict and re-read before retrying.
	ErrVersionConflict = errors.New("conditional update did not apply")

	// ErrActiveJobExists reports the partial unique index on non-terminal
	// challenge jobs rejecting a second live job for the same ticket.
	ErrActiveJobExists = errors.New("a non-terminal challenge job already exists for this ticket")

	// ErrDuplicateEmail reports the unique constraint on user email.
	ErrDuplicateEmail = errors.New("email already registered")
)
