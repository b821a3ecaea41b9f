package device

import (
	"context"
	"strings"
	"time"

	"codeberg.org/mutker/simtempd/internal/sample"
	"codeberg.org/mutker/simtempd/internal/sensor"
)

// Reader is the consumer side of a Device.
type Reader interface {
	Read(ctx context.Context, blocking bool) (sample.Sample, error)
	ReadInto(ctx context.Context, p []byte, blocking bool) (int, error)
	Poll() (Readiness, <-chan struct{})
	WaitReady(ctx context.Context, want Readiness) (Readiness, error)
}

// Controller is the configuration side of a Device.
type Controller interface {
	SetSamplingPeriod(period time.Duration) error
	SetThreshold(mC int32) error
	SetMode(mode sensor.Mode) error
	SamplingPeriod() time.Duration
	Threshold() int32
	Mode() sensor.Mode
	Status() Status
}

// Observer receives notifications about device activity. Calls are made
// outside the device lock and must not block.
type Observer interface {
	SampleProduced(s sample.Sample, evicted bool)
	SampleRead(err error)
	ConfigChanged(key string, value any)
}

// Readiness is the non-blocking answer to "would a read succeed now, and
// is an alert active".
type Readiness uint8

const (
	Readable Readiness = 1 << iota // buffer non-empty
	Urgent                         // threshold crossed by the latest sample
	Hangup                         // device closed
)

func (r Readiness) Has(r2 Readiness) bool {
	return r&r2 == r2
}

func (r Readiness) String() string {
	var names []string
	if r.Has(Readable) {
		names = append(names, "readable")
	}
	if r.Has(Urgent) {
		names = append(names, "urgent")
	}
	if r.Has(Hangup) {
		names = append(names, "hangup")
	}
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// Status is a consistent snapshot of device state and configuration.
type Status struct {
	Flags              sample.Flags
	Urgent             bool
	Buffered           int
	Capacity           int
	Ticks              uint64
	Evictions          uint64
	LastTemperature    int32
	AverageTemperature int32
	SamplingPeriod     time.Duration
	Threshold          int32
	Mode               sensor.Mode
	Closed             bool
}

type noopObserver struct{}

func (noopObserver) SampleProduced(sample.Sample, bool) {}
func (noopObserver) SampleRead(error)                 {}
func (noopObserver) ConfigChanged(string, any)        {}
