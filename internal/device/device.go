// Package device implements the simulated sensor core: a ring of samples
// fed by a periodic producer, read by any number of consumers, and
// reconfigured at runtime. One mutex guards all shared state.
package device

import (
	"context"
	"sync"

	"codeberg.org/mutker/simtempd/internal/clock"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/ring"
	"codeberg.org/mutker/simtempd/internal/sample"
	"codeberg.org/mutker/simtempd/internal/sensor"
)

const historyWindowSize = 5

// closedCh is installed as the notification channel once a device is
// closed so every later wait returns at once.
var closedCh = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Device owns the ring buffer, configuration and latched status.
type Device struct {
	mu        sync.Mutex
	ring      *ring.Buffer
	cfg       Config
	periodGen uint64
	status    sample.Flags
	last      int32
	history   *sensor.History
	ticks     uint64
	evictions uint64
	closed    bool
	waiting   int // blocked readers

	// notify is closed and replaced whenever a sample is published or the
	// device closes. Waiters grab it under mu and select on it after
	// unlocking.
	notify chan struct{}

	source   sensor.Source
	clock    clock.Clock
	observer Observer
	log      logger.Logger

	rearm  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Device.
type Option func(*Device)

// WithSource replaces the simulated temperature source.
func WithSource(src sensor.Source) Option {
	return func(d *Device) {
		d.source = src
	}
}

// WithClock replaces the monotonic clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// WithObserver registers an observer for produced samples, reads and
// configuration changes.
func WithObserver(o Observer) Option {
	return func(d *Device) {
		d.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// New validates cfg, creates the device and starts its producer.
func New(cfg Config, opts ...Option) (*Device, error) {
	d, err := newDevice(cfg, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.produce(ctx)

	d.log.Info().
		Dur("sampling_period", cfg.SamplingPeriod).
		Int32("threshold_mc", cfg.Threshold).
		Str("mode", cfg.Mode.String()).
		Int("capacity", cfg.Capacity).
		Msg("Device started")

	return d, nil
}

// newDevice builds a device without starting the producer.
func newDevice(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		ring:    ring.New(cfg.Capacity),
		cfg:     cfg,
		history: sensor.NewHistory(historyWindowSize),
		notify:  make(chan struct{}),
		rearm:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.source == nil {
		src, err := sensor.NewSimulated()
		if err != nil {
			return nil, err
		}
		d.source = src
	}
	if d.clock == nil {
		d.clock = clock.NewMonotonic()
	}
	if d.observer == nil {
		d.observer = noopObserver{}
	}
	if d.log == nil {
		d.log = logger.New("device")
	}

	return d, nil
}

// Status returns a snapshot of the latched flags, counters and current
// configuration. It never fails, even after Close.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Status{
		Flags:              d.status,
		Urgent:             d.status.Has(sample.FlagThresholdCrossed),
		Buffered:           d.ring.Len(),
		Capacity:           d.ring.Cap(),
		Ticks:              d.ticks,
		Evictions:          d.evictions,
		LastTemperature:    d.last,
		AverageTemperature: d.history.Average(),
		SamplingPeriod:     d.cfg.SamplingPeriod,
		Threshold:          d.cfg.Threshold,
		Mode:               d.cfg.Mode,
		Closed:             d.closed,
	}
}

// Close stops the producer, waits for it to exit and wakes every blocked
// reader, which then fails with service_unavailable. No tick runs once
// Close has started. Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		<-d.done
	}

	d.mu.Lock()
	wake := d.notify
	d.notify = closedCh
	d.mu.Unlock()
	close(wake)

	d.log.Info().Msg("Device closed")

	return nil
}
