package telemetry

import "codeberg.org/mutker/simtempd/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrorCode("telemetry_invalid_config")
	ErrServerStart    = errors.ErrorCode("telemetry_server_start_failed")
	ErrServerShutdown = errors.ErrorCode("telemetry_server_shutdown_failed")
)
