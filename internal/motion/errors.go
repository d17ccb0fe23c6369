package motion

import "errors"

var (
	// ErrConversion is returned when a coordinate does not fit the pointer provider's range
	ErrConversion = errors.New("coordinate out of pointer provider range")

	// ErrPathDiverged means planning exceeded its iteration cap. It indicates a bug, not bad input.
	ErrPathDiverged = errors.New("path planning did not converge")

	ErrEmptyBounds     = errors.New("display bounds are empty")
	ErrEmptyPath       = errors.New("path has no waypoints")
	ErrInvalidDuration = errors.New("duration must not be negative")
)
