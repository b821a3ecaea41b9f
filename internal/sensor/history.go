package sensor

// History keeps a moving window of recent readings.
type History struct {
	values []int32
	size   int
}

// NewHistory returns a window of at most size readings.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}

	return &History{
		values: make([]int32, 0, size),
		size:   size,
	}
}

// Add records t and returns the average over the window.
func (h *History) Add(t int32) int32 {
	if len(h.values) == h.size {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.size-1]
	}
	h.values = append(h.values, t)

	return h.Average()
}

// Average returns the mean of the window, or zero when empty.
func (h *History) Average() int32 {
	if len(h.values) == 0 {
		return 0
	}

	var sum int64
	for _, v := range h.values {
		sum += int64(v)
	}

	return int32(sum / int64(len(h.values)))
}
