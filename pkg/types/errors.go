package types

import "errors"

// Identifier errors
var (
	// ErrInvalidProjectID is returned when a project id is not a positive integer
	ErrInvalidProjectID = errors.New("invalid project id")

	// ErrInvalidEventID is returned when an event id is empty, too long or not alphanumeric
	ErrInvalidEventID = errors.New("invalid event id")
)
