package repos

import "errors"

var (
	// ErrNotFound is the generic sentinel for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatusTransition is returned when an assessment update would
	// regress or skip a lifecycle state.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrDutyNotCompleted is returned when verifying a duty that has not been
	// marked completed.
	ErrDutyNotCompleted = errors.New("duty not completed")
)
