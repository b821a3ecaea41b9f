// Package natsctl exposes the device control and read operations as NATS
// request/reply subjects under a common prefix.
package natsctl

import (
	"context"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/sample"
	"codeberg.org/mutker/simtempd/internal/sensor"
)

const (
	OpGetSamplingMS  = "get.sampling_ms"
	OpSetSamplingMS  = "set.sampling_ms"
	OpGetThresholdMC = "get.threshold_mc"
	OpSetThresholdMC = "set.threshold_mc"
	OpGetMode        = "get.mode"
	OpSetMode        = "set.mode"
	OpStatus         = "status"
	OpRead           = "read"
	OpReadWait       = "read.wait"
)

// Ops lists every operation the handler answers.
func Ops() []string {
	return []string{
		OpGetSamplingMS, OpSetSamplingMS,
		OpGetThresholdMC, OpSetThresholdMC,
		OpGetMode, OpSetMode,
		OpStatus, OpRead, OpReadWait,
	}
}

// Device is the part of *device.Device the binding drives.
type Device interface {
	device.Controller
	Read(ctx context.Context, blocking bool) (sample.Sample, error)
}

type Handler struct {
	dev Device
	log logger.Logger
}

func NewHandler(dev Device, log logger.Logger) *Handler {
	return &Handler{dev: dev, log: log}
}

// Handle executes op with the plain-text request body. Errors are carried
// in the reply, never returned.
func (h *Handler) Handle(ctx context.Context, op string, body []byte) Reply {
	arg := strings.TrimSpace(string(body))

	reply, err := h.handle(ctx, op, arg)
	if err != nil {
		h.log.Debug().Str("op", op).Str("arg", arg).Err(err).Msg("Request failed")
		return errorReply(err)
	}

	return reply
}

func (h *Handler) handle(ctx context.Context, op, arg string) (Reply, error) {
	errFactory := errors.New()

	switch op {
	case OpGetSamplingMS:
		return Reply{Value: h.dev.SamplingPeriod().Milliseconds()}, nil

	case OpSetSamplingMS:
		ms, err := parseMillis(arg)
		if err != nil {
			return Reply{}, err
		}
		if err := h.dev.SetSamplingPeriod(time.Duration(ms) * time.Millisecond); err != nil {
			return Reply{}, err
		}
		return Reply{Value: int64(ms)}, nil

	case OpGetThresholdMC:
		return Reply{Value: h.dev.Threshold()}, nil

	case OpSetThresholdMC:
		mc, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return Reply{}, errFactory.WithData(ErrInvalidValue, arg)
		}
		if err := h.dev.SetThreshold(int32(mc)); err != nil {
			return Reply{}, err
		}
		return Reply{Value: int32(mc)}, nil

	case OpGetMode:
		return Reply{Value: h.dev.Mode().String()}, nil

	case OpSetMode:
		mode, err := sensor.ParseMode(arg)
		if err != nil {
			return Reply{}, err
		}
		if err := h.dev.SetMode(mode); err != nil {
			return Reply{}, err
		}
		return Reply{Value: mode.String()}, nil

	case OpStatus:
		return Reply{Status: newStatusBody(h.dev.Status())}, nil

	case OpRead:
		s, err := h.dev.Read(ctx, false)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Record: newRecord(s)}, nil

	case OpReadWait:
		wait := defaultReadWait
		if arg != "" {
			ms, err := parseMillis(arg)
			if err != nil {
				return Reply{}, err
			}
			wait = time.Duration(ms) * time.Millisecond
		}

		ctx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()

		for {
			s, err := h.dev.Read(ctx, true)
			if errors.HasCode(err, errors.ErrNoData) {
				continue
			}
			if err != nil {
				return Reply{}, err
			}
			return Reply{Record: newRecord(s)}, nil
		}
	}

	return Reply{}, errFactory.WithData(ErrUnknownOp, op)
}

// parseMillis accepts a positive millisecond count that fits in 32 bits.
func parseMillis(arg string) (uint32, error) {
	ms, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || ms == 0 {
		return 0, errors.New().WithData(ErrInvalidValue, arg)
	}

	return uint32(ms), nil
}
