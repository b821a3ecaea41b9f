// Package sample defines the reading moved from the producer to readers and
// its fixed 16-byte wire record.
package sample

import (
	"encoding/binary"
	"fmt"
	"strings"

	"codeberg.org/mutker/simtempd/internal/errors"
)

// Size is the length of one encoded record: timestamp_ns u64, temp_mC i32,
// flags u32, little-endian, no padding.
const Size = 16

// Flags is the event bitset carried by a sample and by device status.
type Flags uint32

const (
	FlagNewSample        Flags = 1 << 0
	FlagThresholdCrossed Flags = 1 << 1
	FlagError            Flags = 1 << 2 // reserved
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

func (f Flags) String() string {
	var names []string
	if f.Has(FlagNewSample) {
		names = append(names, "new_sample")
	}
	if f.Has(FlagThresholdCrossed) {
		names = append(names, "threshold_crossed")
	}
	if f.Has(FlagError) {
		names = append(names, "error")
	}
	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// Sample is one timestamped temperature reading. Values are copied, never
// shared, so a Sample is immutable once produced.
type Sample struct {
	Timestamp   uint64 // monotonic nanoseconds
	Temperature int32  // milli-degree Celsius
	Flags       Flags
}

// Alert reports whether the sample crossed the threshold when it was taken.
func (s Sample) Alert() bool {
	return s.Flags.Has(FlagThresholdCrossed)
}

// Celsius returns the temperature in degrees.
func (s Sample) Celsius() float64 {
	return float64(s.Temperature) / 1000
}

func (s Sample) String() string {
	return fmt.Sprintf("ts=%d temp=%.1fC flags=%s", s.Timestamp, s.Celsius(), s.Flags)
}

// MarshalTo writes the wire record into p. It fails with invalid_argument
// when p cannot hold a full record; partial records are never written.
func (s Sample) MarshalTo(p []byte) (int, error) {
	if len(p) < Size {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("buffer of %d bytes, need %d", len(p), Size))
	}

	binary.LittleEndian.PutUint64(p[0:8], s.Timestamp)
	binary.LittleEndian.PutUint32(p[8:12], uint32(s.Temperature))
	binary.LittleEndian.PutUint32(p[12:16], uint32(s.Flags))

	return Size, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s Sample) MarshalBinary() ([]byte, error) {
	p := make([]byte, Size)
	_, err := s.MarshalTo(p)

	return p, err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. Exactly one record
// is accepted.
func (s *Sample) UnmarshalBinary(p []byte) error {
	if len(p) != Size {
		return errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("record of %d bytes, want %d", len(p), Size))
	}

	s.Timestamp = binary.LittleEndian.Uint64(p[0:8])
	s.Temperature = int32(binary.LittleEndian.Uint32(p[8:12]))
	s.Flags = Flags(binary.LittleEndian.Uint32(p[12:16]))

	return nil
}
