//go:build unix

package clock

import "golang.org/x/sys/unix"

func monotonicNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackNow()
	}

	return uint64(ts.Nano())
}
