// Package ring implements the fixed-capacity sample store used by the
// device. It holds no lock; the owner serializes every call.
package ring

import "codeberg.org/mutker/simtempd/internal/sample"

// DefaultCapacity is the number of unread samples retained before the
// oldest is overwritten.
const DefaultCapacity = 20

// Buffer is a circular queue of samples. head is the next write slot and
// tail the next read slot; head == tail means empty. One slot is always
// left free to tell full from empty, so a Buffer of capacity n allocates
// n+1 slots.
type Buffer struct {
	slots []sample.Sample
	head  int
	tail  int
}

// New returns an empty buffer retaining up to capacity samples. A
// capacity below one is raised to one.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}

	return &Buffer{slots: make([]sample.Sample, capacity+1)}
}

func (b *Buffer) next(i int) int {
	return (i + 1) % len(b.slots)
}

// Push stores s. When the buffer is full the oldest unread sample is
// dropped first and evicted is true. Push never fails.
func (b *Buffer) Push(s sample.Sample) (evicted bool) {
	next := b.next(b.head)
	if next == b.tail {
		b.tail = b.next(b.tail)
		evicted = true
	}

	b.slots[b.head] = s
	b.head = next

	return evicted
}

// Pop removes and returns the oldest unread sample. ok is false when the
// buffer is empty.
func (b *Buffer) Pop() (s sample.Sample, ok bool) {
	if b.head == b.tail {
		return sample.Sample{}, false
	}

	s = b.slots[b.tail]
	b.slots[b.tail] = sample.Sample{}
	b.tail = b.next(b.tail)

	return s, true
}

// IsEmpty reports whether there is nothing to read.
func (b *Buffer) IsEmpty() bool {
	return b.head == b.tail
}

// IsFull reports whether the next Push evicts.
func (b *Buffer) IsFull() bool {
	return b.next(b.head) == b.tail
}

// Len returns the number of unread samples.
func (b *Buffer) Len() int {
	return (b.head - b.tail + len(b.slots)) % len(b.slots)
}

// Cap returns the number of samples retained when full.
func (b *Buffer) Cap() int {
	return len(b.slots) - 1
}
