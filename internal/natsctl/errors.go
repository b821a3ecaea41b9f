package natsctl

import "codeberg.org/mutker/simtempd/internal/errors"

const (
	ErrConnect      = errors.ErrorCode("natsctl_connect_failed")
	ErrSubscribe    = errors.ErrorCode("natsctl_subscribe_failed")
	ErrUnknownOp    = errors.ErrorCode("natsctl_unknown_operation")
	ErrBadReply     = errors.ErrorCode("natsctl_bad_reply")
	ErrRemoteCall   = errors.ErrRemoteCall
	ErrInvalidValue = errors.ErrInvalidArgument
)
