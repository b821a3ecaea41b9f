package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/logger"
	"codeberg.org/mutker/simtempd/internal/sample"
	"codeberg.org/mutker/simtempd/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns 1, 2, 3, ... so every sample has a distinct timestamp.
type stepClock struct {
	mu sync.Mutex
	n  uint64
}

func (c *stepClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

type recordingObserver struct {
	mu       sync.Mutex
	produced []sample.Sample
	evicted  int
	reads    []error
	changes  map[string]any
}

func (o *recordingObserver) SampleProduced(s sample.Sample, evicted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.produced = append(o.produced, s)
	if evicted {
		o.evicted++
	}
}

func (o *recordingObserver) SampleRead(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reads = append(o.reads, err)
}

func (o *recordingObserver) ConfigChanged(key string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.changes == nil {
		o.changes = make(map[string]any)
	}
	o.changes[key] = value
}

// newIdleDevice returns a device whose producer is not running; tests
// drive ticks by hand.
func newIdleDevice(t *testing.T, cfg Config, opts ...Option) *Device {
	t.Helper()

	base := []Option{WithClock(&stepClock{}), WithLogger(logger.New("test"))}
	d, err := newDevice(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func newRunningDevice(t *testing.T, cfg Config, opts ...Option) *Device {
	t.Helper()

	d, err := New(cfg, append([]Option{WithLogger(logger.New("test"))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func tickNow(d *Device) {
	_, gen := d.armedPeriod()
	d.tick(gen)
}

func drain(t *testing.T, d *Device) {
	t.Helper()
	for {
		_, err := d.Read(context.Background(), false)
		if err != nil {
			require.True(t, errors.HasCode(err, errors.ErrWouldBlock), "unexpected error %v", err)
			return
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero period", func(c *Config) { c.SamplingPeriod = 0 }, false},
		{"negative period", func(c *Config) { c.SamplingPeriod = -time.Millisecond }, false},
		{"unknown mode", func(c *Config) { c.Mode = sensor.Mode(5) }, false},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, false},
		{"negative threshold", func(c *Config) { c.Threshold = -40000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.SamplingPeriod)
	assert.Equal(t, int32(45000), cfg.Threshold)
	assert.Equal(t, sensor.ModeNormal, cfg.Mode)
	assert.Equal(t, 20, cfg.Capacity)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingPeriod = 0

	d, err := New(cfg)
	assert.Nil(t, d)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}

func TestOverflowDropsOldest(t *testing.T) {
	obs := &recordingObserver{}
	d := newIdleDevice(t, DefaultConfig(), WithObserver(obs))

	for i := 0; i < 25; i++ {
		tickNow(d)
	}

	st := d.Status()
	assert.Equal(t, uint64(25), st.Ticks)
	assert.Equal(t, uint64(5), st.Evictions)
	assert.Equal(t, 20, st.Buffered)
	assert.Equal(t, 5, obs.evicted)

	for want := uint64(6); want <= 25; want++ {
		s, err := d.Read(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, want, s.Timestamp)
		assert.True(t, s.Flags.Has(sample.FlagNewSample))
	}

	_, err := d.Read(context.Background(), false)
	assert.True(t, errors.HasCode(err, errors.ErrWouldBlock))
}

func TestThresholdLatch(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(46000, 44000)))

	tickNow(d)
	st := d.Status()
	assert.True(t, st.Urgent)
	assert.True(t, st.Flags.Has(sample.FlagThresholdCrossed))
	r, _ := d.Poll()
	assert.True(t, r.Has(Urgent|Readable))

	tickNow(d)
	assert.False(t, d.Status().Urgent)
	r, _ = d.Poll()
	assert.False(t, r.Has(Urgent))

	first, err := d.Read(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(46000), first.Temperature)
	assert.True(t, first.Alert())

	second, err := d.Read(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(44000), second.Temperature)
	assert.False(t, second.Alert())
}

func TestThresholdEqualIsNotCrossed(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(45000)))

	tickNow(d)
	assert.False(t, d.Status().Urgent)
}

func TestLatchPersistsUntilClearingTick(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(46000, 47000, 46500, 40000)))

	tickNow(d)
	for i := 0; i < 2; i++ {
		drain(t, d)
		assert.True(t, d.Status().Urgent, "reading must not clear the latch")
		tickNow(d)
	}
	assert.True(t, d.Status().Urgent)

	tickNow(d)
	assert.False(t, d.Status().Urgent)
}

func TestLatchFollowsLatestProducedNotOldestUnread(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 1
	d := newIdleDevice(t, cfg, WithSource(sensor.Sequence(44000, 46000, 44000)))

	tickNow(d)
	tickNow(d) // evicts the 44000 sample
	assert.True(t, d.Status().Urgent)

	tickNow(d) // evicts the alerting sample
	assert.False(t, d.Status().Urgent)

	s, err := d.Read(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, s.Alert())
}

func TestSetThresholdAppliesNextTick(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(46000)))

	tickNow(d)
	require.NoError(t, d.SetThreshold(47000))
	assert.Equal(t, int32(47000), d.Threshold())

	s, err := d.Read(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, s.Alert(), "published samples are not reclassified")
	assert.True(t, d.Status().Urgent, "status changes on the next tick only")

	tickNow(d)
	s, err = d.Read(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, s.Alert())
	assert.False(t, d.Status().Urgent)
}

func TestSetMode(t *testing.T) {
	var mu sync.Mutex
	var seen []sensor.Mode
	src := sensor.SourceFunc(func(m sensor.Mode) int32 {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m)
		return 30000
	})
	obs := &recordingObserver{}
	d := newIdleDevice(t, DefaultConfig(), WithSource(src), WithObserver(obs))

	err := d.SetMode(sensor.Mode(3))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
	assert.Equal(t, sensor.ModeNormal, d.Mode())

	tickNow(d)
	require.NoError(t, d.SetMode(sensor.ModeNoisy))
	assert.Equal(t, sensor.ModeNoisy, d.Mode())
	tickNow(d)

	assert.Equal(t, []sensor.Mode{sensor.ModeNormal, sensor.ModeNoisy}, seen)
	assert.Equal(t, "noisy", obs.changes["mode"])
}

func TestSetSamplingPeriodRejectsNonPositive(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig())

	for _, p := range []time.Duration{0, -time.Millisecond, -time.Hour} {
		err := d.SetSamplingPeriod(p)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument), "period %v", p)
		assert.Equal(t, DefaultSamplingPeriod, d.SamplingPeriod())
	}

	require.NoError(t, d.SetSamplingPeriod(250*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, d.SamplingPeriod())
	assert.Equal(t, 250*time.Millisecond, d.Status().SamplingPeriod)
}

func TestStaleTimerDoesNotTick(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig())

	_, gen := d.armedPeriod()
	require.NoError(t, d.SetSamplingPeriod(time.Second))

	d.tick(gen)
	assert.Equal(t, uint64(0), d.Status().Ticks, "a timer armed with the old period must not produce")

	tickNow(d)
	assert.Equal(t, uint64(1), d.Status().Ticks)
}

func TestNonBlockingReadOnEmpty(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig())

	start := time.Now()
	_, err := d.Read(context.Background(), false)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWouldBlock))
	assert.Less(t, elapsed, 10*time.Millisecond)
}

func TestBlockingReadWakesOnPublish(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(41000)))

	go func() {
		time.Sleep(50 * time.Millisecond)
		tickNow(d)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	s, err := d.Read(ctx, true)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, int32(41000), s.Temperature)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestCancelledReadIsInterrupted(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Read(ctx, true)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrInterrupted))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled read did not return")
	}

	tickNow(d)
	s, err := d.Read(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s.Timestamp)
}

func waitingReaders(d *Device) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting
}

func TestLostRaceAfterWakeIsNoData(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(40000)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		s   sample.Sample
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s, err := d.Read(ctx, true)
			results <- result{s, err}
		}()
	}

	require.Eventually(t, func() bool { return waitingReaders(d) == 2 }, time.Second, time.Millisecond)
	tickNow(d)

	var got, noData int
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.err == nil {
				got++
				assert.Equal(t, int32(40000), r.s.Temperature)
				continue
			}
			assert.True(t, errors.HasCode(r.err, errors.ErrNoData), "got %v", r.err)
			assert.False(t, errors.HasCode(r.err, errors.ErrWouldBlock))
			noData++
		case <-time.After(time.Second):
			t.Fatal("woken reader did not return")
		}
	}

	assert.Equal(t, 1, got)
	assert.Equal(t, 1, noData)
	assert.Zero(t, waitingReaders(d))
}

func TestReadInto(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(43210)))
	tickNow(d)

	n, err := d.ReadInto(context.Background(), make([]byte, sample.Size-1), false)
	assert.Equal(t, 0, n)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
	assert.Equal(t, 1, d.Status().Buffered, "a short buffer must not consume a sample")

	p := make([]byte, 32)
	n, err = d.ReadInto(context.Background(), p, false)
	require.NoError(t, err)
	require.Equal(t, sample.Size, n)

	var s sample.Sample
	require.NoError(t, s.UnmarshalBinary(p[:n]))
	assert.Equal(t, int32(43210), s.Temperature)
	assert.Equal(t, sample.FlagNewSample, s.Flags)

	_, err = d.ReadInto(context.Background(), p, false)
	assert.True(t, errors.HasCode(err, errors.ErrWouldBlock))
}

func TestPollAndWaitReady(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig(), WithSource(sensor.Sequence(40000, 50000)))

	r, wake := d.Poll()
	assert.Equal(t, Readiness(0), r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.WaitReady(ctx, Readable)
	assert.True(t, errors.HasCode(err, errors.ErrInterrupted))

	tickNow(d)
	select {
	case <-wake:
	default:
		t.Fatal("poll channel must close on publish")
	}

	r, err = d.WaitReady(context.Background(), Readable)
	require.NoError(t, err)
	assert.Equal(t, Readable, r)

	done := make(chan Readiness, 1)
	go func() {
		r, _ := d.WaitReady(context.Background(), Urgent)
		done <- r
	}()

	time.Sleep(10 * time.Millisecond)
	tickNow(d)

	select {
	case r := <-done:
		assert.True(t, r.Has(Urgent))
		assert.True(t, r.Has(Readable))
	case <-time.After(time.Second):
		t.Fatal("WaitReady did not observe the alert")
	}
}

func TestReadinessString(t *testing.T) {
	assert.Equal(t, "none", Readiness(0).String())
	assert.Equal(t, "readable|urgent", (Readable | Urgent).String())
	assert.Equal(t, "hangup", Hangup.String())
}

func TestCloseWakesReadersAndRejectsOperations(t *testing.T) {
	d := newIdleDevice(t, DefaultConfig())

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Read(context.Background(), true)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	select {
	case err := <-errCh:
		assert.True(t, errors.HasCode(err, errors.ErrUnavailable))
	case <-time.After(time.Second):
		t.Fatal("blocked reader not woken by Close")
	}

	_, err := d.Read(context.Background(), false)
	assert.True(t, errors.HasCode(err, errors.ErrUnavailable))
	assert.True(t, errors.HasCode(d.SetSamplingPeriod(time.Second), errors.ErrUnavailable))
	assert.True(t, errors.HasCode(d.SetThreshold(1), errors.ErrUnavailable))
	assert.True(t, errors.HasCode(d.SetMode(sensor.ModeNoisy), errors.ErrUnavailable))

	r, _ := d.Poll()
	assert.True(t, r.Has(Hangup))
	r, err = d.WaitReady(context.Background(), Readable)
	require.NoError(t, err)
	assert.True(t, r.Has(Hangup))

	assert.True(t, d.Status().Closed)
	tickNow(d)
	assert.Equal(t, uint64(0), d.Status().Ticks)
}

func TestObserverSeesReads(t *testing.T) {
	obs := &recordingObserver{}
	d := newIdleDevice(t, DefaultConfig(), WithObserver(obs))

	tickNow(d)
	_, _ = d.Read(context.Background(), false)
	_, _ = d.Read(context.Background(), false)
	require.NoError(t, d.SetThreshold(1000))
	require.NoError(t, d.SetSamplingPeriod(2*time.Second))

	require.Len(t, obs.reads, 2)
	assert.NoError(t, obs.reads[0])
	assert.True(t, errors.HasCode(obs.reads[1], errors.ErrWouldBlock))
	assert.Len(t, obs.produced, 1)
	assert.Equal(t, int32(1000), obs.changes["threshold_mc"])
	assert.Equal(t, int64(2000), obs.changes["sampling_ms"])
}
