package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/simtempd/internal/device"
)

// Collector records device status snapshots for one daemon run
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	RunID() string
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
	Close() error
}

// StatusSource is satisfied by *device.Device.
type StatusSource interface {
	Status() device.Status
}

// Snapshot is one row of status history. It holds counters and the most
// recent reading, never the buffered samples themselves.
type Snapshot struct {
	RunID              string
	Timestamp          time.Time
	Ticks              uint64
	Evictions          uint64
	Buffered           int
	Urgent             bool
	LastTemperature    int32
	AverageTemperature int32
	SamplingMS         int64
	ThresholdMC        int32
	Mode               string
}

// NewSnapshot captures st at ts.
func NewSnapshot(ts time.Time, st device.Status) *Snapshot {
	return &Snapshot{
		Timestamp:          ts,
		Ticks:              st.Ticks,
		Evictions:          st.Evictions,
		Buffered:           st.Buffered,
		Urgent:             st.Urgent,
		LastTemperature:    st.LastTemperature,
		AverageTemperature: st.AverageTemperature,
		SamplingMS:         st.SamplingPeriod.Milliseconds(),
		ThresholdMC:        st.Threshold,
		Mode:               st.Mode.String(),
	}
}
