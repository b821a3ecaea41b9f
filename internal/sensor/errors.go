package sensor

import "codeberg.org/mutker/simtempd/internal/errors"

const (
	// ErrUnknownMode is an invalid_argument: callers matching on
	// errors.ErrInvalidArgument should also accept it.
	ErrUnknownMode = errors.ErrInvalidArgument

	ErrInvalidProfile = errors.ErrorCode("sensor_invalid_profile")
)
