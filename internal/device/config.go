package device

import (
	"fmt"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/ring"
	"codeberg.org/mutker/simtempd/internal/sensor"
)

const (
	DefaultSamplingPeriod       = 100 * time.Millisecond
	DefaultThreshold      int32 = 45000
	DefaultMode                 = sensor.ModeNormal
)

// Config is the initial configuration of a Device. It is validated with
// the same rules the control operations apply at runtime.
type Config struct {
	SamplingPeriod time.Duration
	Threshold      int32 // milli-degree Celsius
	Mode           sensor.Mode
	Capacity       int
}

func DefaultConfig() Config {
	return Config{
		SamplingPeriod: DefaultSamplingPeriod,
		Threshold:      DefaultThreshold,
		Mode:           DefaultMode,
		Capacity:       ring.DefaultCapacity,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.SamplingPeriod <= 0 {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("sampling period %v must be positive", c.SamplingPeriod))
	}
	if !c.Mode.Valid() {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("mode %v", c.Mode))
	}
	if c.Capacity < 1 {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("capacity %d must be at least 1", c.Capacity))
	}

	return nil
}
