package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/simtempd/internal/clock"
	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/metrics"
	"codeberg.org/mutker/simtempd/internal/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	at := time.Date(2025, 9, 22, 20, 15, 4, 123_456_789, time.UTC)

	assert.Equal(t, "2025-09-22T20:15:04.123Z temp=44.1C alert=0",
		formatLine(at, sample.Sample{Temperature: 44100}))
	assert.Equal(t, "2025-09-22T20:15:04.123Z temp=46.0C alert=1",
		formatLine(at, sample.Sample{Temperature: 46000, Flags: sample.FlagThresholdCrossed}))
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "monitor", "selftest", "ctl", "history"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("sampling-ms"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func newFastDevice(t *testing.T, threshold int32, opts ...device.Option) *device.Device {
	t.Helper()

	cfg := device.DefaultConfig()
	cfg.SamplingPeriod = 10 * time.Millisecond
	cfg.Threshold = threshold
	dev, err := device.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	return dev
}

func TestMonitorPrintsSamplesAndOneBanner(t *testing.T) {
	clk := clock.NewMonotonic()
	dev := newFastDevice(t, -100000, device.WithClock(clk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	require.NoError(t, monitor(ctx, dev, clk, &out, 3))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "THRESHOLD ALERT")
	for _, l := range lines[1:] {
		assert.Regexp(t, `^\d{4}-\d\d-\d\dT\d\d:\d\d:\d\d\.\d{3}Z temp=-?\d+\.\dC alert=1$`, l)
	}
}

func TestMonitorStopsOnHangup(t *testing.T) {
	clk := clock.NewMonotonic()
	dev := newFastDevice(t, 100000, device.WithClock(clk))
	require.NoError(t, dev.Close())

	var out bytes.Buffer
	require.NoError(t, monitor(context.Background(), dev, clk, &out, 0))
	assert.Contains(t, out.String(), "device closed")
}

func TestSelftestPasses(t *testing.T) {
	dev := newFastDevice(t, 100000)

	var out bytes.Buffer
	require.NoError(t, selftest(context.Background(), dev, defaultSelftestThreshold, 2*time.Second, &out))
	assert.Contains(t, out.String(), "PASS")
	assert.Equal(t, defaultSelftestThreshold, dev.Threshold())
}

type silentDevice struct{}

func (silentDevice) SetThreshold(int32) error { return nil }

func (silentDevice) WaitReady(ctx context.Context, _ device.Readiness) (device.Readiness, error) {
	<-ctx.Done()
	return 0, errors.New().Wrap(errors.ErrInterrupted, ctx.Err())
}

func TestSelftestFailsOnTimeout(t *testing.T) {
	var out bytes.Buffer
	err := selftest(context.Background(), silentDevice{}, 20000, 20*time.Millisecond, &out)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSelfTest))
	assert.Contains(t, out.String(), "FAIL")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	printHistory(&out, nil)
	assert.Equal(t, "no snapshots recorded\n", out.String())

	out.Reset()
	printHistory(&out, []metrics.Snapshot{{
		RunID:           "0123456789abcdef",
		Timestamp:       time.Date(2025, 9, 22, 20, 15, 4, 0, time.UTC),
		Ticks:           12,
		LastTemperature: 44100,
		Urgent:          true,
		Mode:            "noisy",
	}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "01234567 ")
	assert.Contains(t, lines[1], "44.1C")
	assert.Contains(t, lines[1], "noisy")
}
