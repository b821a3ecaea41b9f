//go:build !unix

package clock

func monotonicNow() uint64 {
	return fallbackNow()
}
