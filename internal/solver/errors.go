package solver

import "errors"

var (
	// ErrInvalidConfig indicates a configuration field outside its valid range.
	ErrInvalidConfig = errors.New("solver: invalid configuration")

	// ErrInvalidStep indicates a non-positive or non-finite update dt.
	ErrInvalidStep = errors.New("solver: invalid time step")
)
