package device

import (
	"fmt"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/sensor"
)

// SetSamplingPeriod changes the producer period. The running timer is
// cancelled and re-armed with the new period starting now; the old period
// is not honoured even if partially elapsed.
func (d *Device) SetSamplingPeriod(period time.Duration) error {
	errFactory := errors.New()

	if period <= 0 {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("sampling period %v must be positive", period))
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errFactory.New(errors.ErrUnavailable)
	}
	d.cfg.SamplingPeriod = period
	d.periodGen++
	d.mu.Unlock()

	select {
	case d.rearm <- struct{}{}:
	default:
	}

	d.log.Debug().Dur("sampling_period", period).Msg("Sampling period changed")
	d.observer.ConfigChanged("sampling_ms", period.Milliseconds())

	return nil
}

// SetThreshold changes the alert threshold in milli-degrees Celsius. It
// applies from the next tick; published samples are not reclassified.
func (d *Device) SetThreshold(mC int32) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New().New(errors.ErrUnavailable)
	}
	d.cfg.Threshold = mC
	d.mu.Unlock()

	d.log.Debug().Int32("threshold_mc", mC).Msg("Threshold changed")
	d.observer.ConfigChanged("threshold_mc", mC)

	return nil
}

// SetMode switches the simulation profile from the next tick.
func (d *Device) SetMode(mode sensor.Mode) error {
	errFactory := errors.New()

	if !mode.Valid() {
		return errFactory.WithData(errors.ErrInvalidArgument, fmt.Sprintf("mode %v", mode))
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errFactory.New(errors.ErrUnavailable)
	}
	d.cfg.Mode = mode
	d.mu.Unlock()

	d.log.Debug().Str("mode", mode.String()).Msg("Mode changed")
	d.observer.ConfigChanged("mode", mode.String())

	return nil
}

func (d *Device) SamplingPeriod() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.SamplingPeriod
}

func (d *Device) Threshold() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.Threshold
}

func (d *Device) Mode() sensor.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.Mode
}
