package clock

import "time"

var processStart = time.Now()

// fallbackNow derives monotonic nanoseconds from the runtime's monotonic
// reading of time.Now.
func fallbackNow() uint64 {
	return uint64(time.Since(processStart))
}
