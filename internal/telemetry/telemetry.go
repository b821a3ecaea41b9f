// Package telemetry exports device activity as Prometheus metrics and
// serves them over HTTP.
package telemetry

import (
	"sync/atomic"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/sample"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Observer implements device.Observer on top of its own registry.
type Observer struct {
	registry *prometheus.Registry

	SamplesProduced  prometheus.Counter
	SamplesEvicted   prometheus.Counter
	Reads            *prometheus.CounterVec
	ConfigChanges    *prometheus.CounterVec
	Temperature      prometheus.Gauge
	ThresholdCrossed prometheus.Gauge
	Buffered         prometheus.GaugeFunc

	bufferLen atomic.Pointer[func() int]
}

func NewObserver(cfg Config) (*Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ns := cfg.Namespace

	o := &Observer{
		registry: prometheus.NewRegistry(),

		SamplesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "samples",
			Name:      "produced_total",
			Help:      "Total number of samples produced",
		}),
		SamplesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "samples",
			Name:      "evicted_total",
			Help:      "Samples dropped unread because the buffer was full",
		}),
		Reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "reads",
			Name:      "total",
			Help:      "Read attempts by result (ok or error code)",
		}, []string{"result"}),
		ConfigChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "config",
			Name:      "changes_total",
			Help:      "Accepted configuration changes by key",
		}, []string{"key"}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "temperature_millicelsius",
			Help:      "Temperature of the latest produced sample",
		}),
		ThresholdCrossed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "threshold_crossed",
			Help:      "Latched alert state (0=clear, 1=crossed)",
		}),
	}
	o.Buffered = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "buffer",
		Name:      "samples",
		Help:      "Unread samples in the buffer",
	}, o.buffered)

	o.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		o.SamplesProduced,
		o.SamplesEvicted,
		o.Reads,
		o.ConfigChanges,
		o.Temperature,
		o.ThresholdCrossed,
		o.Buffered,
	)

	return o, nil
}

// TrackBuffer sets the function the buffer occupancy gauge reads at scrape
// time. Until it is called the gauge reports 0.
func (o *Observer) TrackBuffer(fn func() int) {
	o.bufferLen.Store(&fn)
}

func (o *Observer) buffered() float64 {
	fn := o.bufferLen.Load()
	if fn == nil {
		return 0
	}

	return float64((*fn)())
}

// Registry returns the registry holding every metric of this observer.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) SampleProduced(s sample.Sample, evicted bool) {
	o.SamplesProduced.Inc()
	if evicted {
		o.SamplesEvicted.Inc()
	}
	o.Temperature.Set(float64(s.Temperature))
	if s.Alert() {
		o.ThresholdCrossed.Set(1)
	} else {
		o.ThresholdCrossed.Set(0)
	}
}

func (o *Observer) SampleRead(err error) {
	result := "ok"
	if err != nil {
		result = string(errors.CodeOf(err))
	}
	o.Reads.WithLabelValues(result).Inc()
}

func (o *Observer) ConfigChanged(key string, _ any) {
	o.ConfigChanges.WithLabelValues(key).Inc()
}
