package device

import (
	"context"
	"time"

	"codeberg.org/mutker/simtempd/internal/sample"
)

// produce runs the periodic producer until ctx is cancelled. The timer is
// owned by this goroutine alone; period changes reach it through rearm and
// the period generation, so a tick armed with an old period never runs.
func (d *Device) produce(ctx context.Context) {
	defer close(d.done)

	period, gen := d.armedPeriod()
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.rearm:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			d.tick(gen)
		}

		// Forward from now: a late tick never causes a burst of catch-up ticks.
		period, gen = d.armedPeriod()
		timer.Reset(period)
	}
}

func (d *Device) armedPeriod() (time.Duration, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cfg.SamplingPeriod, d.periodGen
}

// tick produces and publishes one sample, unless the device is closed or
// the period changed since the timer was armed.
func (d *Device) tick(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.periodGen {
		d.mu.Unlock()
		return
	}
	s, evicted, wake := d.produceLocked()
	d.mu.Unlock()

	close(wake)

	if evicted {
		d.log.Debug().Uint64("timestamp", s.Timestamp).Msg("Buffer full, dropped oldest sample")
	}
	d.observer.SampleProduced(s, evicted)
}

// produceLocked synthesizes a sample from the current configuration,
// updates the latched status and pushes the sample. The returned channel
// must be closed by the caller after releasing mu.
func (d *Device) produceLocked() (s sample.Sample, evicted bool, wake chan struct{}) {
	temp := d.source.Next(d.cfg.Mode)

	s.Temperature = temp
	s.Flags = sample.FlagNewSample
	if temp > d.cfg.Threshold {
		s.Flags |= sample.FlagThresholdCrossed
		d.status |= sample.FlagThresholdCrossed
	} else {
		d.status &^= sample.FlagThresholdCrossed
	}
	s.Timestamp = d.clock.Now()

	evicted = d.ring.Push(s)
	d.ticks++
	if evicted {
		d.evictions++
	}
	d.last = temp
	d.history.Add(temp)

	wake = d.notify
	d.notify = make(chan struct{})

	return s, evicted, wake
}
