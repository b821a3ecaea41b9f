package device

import (
	"context"
	"fmt"

	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/sample"
)

// Read returns the oldest unread sample.
//
// With data buffered it returns at once. When empty, a non-blocking read
// fails with would_block; a blocking read waits for the producer and fails
// with interrupted if ctx ends first. A blocking read that was woken but
// lost the sample to another reader fails with no_data and may be retried.
// After Close every read fails with service_unavailable.
func (d *Device) Read(ctx context.Context, blocking bool) (sample.Sample, error) {
	s, err := d.read(ctx, blocking)
	d.observer.SampleRead(err)

	return s, err
}

// ReadInto reads one sample and writes its 16-byte record into p. A p
// shorter than one record fails with invalid_argument without consuming a
// sample.
func (d *Device) ReadInto(ctx context.Context, p []byte, blocking bool) (int, error) {
	if len(p) < sample.Size {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, fmt.Sprintf("buffer of %d bytes, need %d", len(p), sample.Size))
	}

	s, err := d.Read(ctx, blocking)
	if err != nil {
		return 0, err
	}

	return s.MarshalTo(p)
}

func (d *Device) read(ctx context.Context, blocking bool) (sample.Sample, error) {
	errFactory := errors.New()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return sample.Sample{}, errFactory.New(errors.ErrUnavailable)
	}
	if s, ok := d.ring.Pop(); ok {
		d.mu.Unlock()
		return s, nil
	}
	if !blocking {
		d.mu.Unlock()
		return sample.Sample{}, errFactory.New(errors.ErrWouldBlock)
	}
	wake := d.notify
	d.waiting++
	d.mu.Unlock()

	err := d.waitReadable(ctx, wake)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiting--

	if err != nil {
		return sample.Sample{}, err
	}
	if d.closed {
		return sample.Sample{}, errFactory.New(errors.ErrUnavailable)
	}
	s, ok := d.ring.Pop()
	if !ok {
		return sample.Sample{}, errFactory.New(errors.ErrNoData)
	}

	return s, nil
}

// waitReadable blocks until the producer publishes or the device closes.
// A wake-up is only a hint: every waiter is woken by one publish, so the
// caller re-checks the ring under mu.
func (d *Device) waitReadable(ctx context.Context, wake <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return errors.New().Wrap(errors.ErrInterrupted, ctx.Err())
	case <-wake:
		return nil
	}
}

// Poll reports current readiness without blocking and returns the channel
// that closes on the next published sample or on Close. Callers wanting
// to wait select on that channel and then Poll again.
func (d *Device) Poll() (Readiness, <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var r Readiness
	if !d.ring.IsEmpty() {
		r |= Readable
	}
	if d.status.Has(sample.FlagThresholdCrossed) {
		r |= Urgent
	}
	if d.closed {
		r |= Hangup
	}

	return r, d.notify
}

// WaitReady blocks until any readiness bit in want (or Hangup) is set and
// returns the full mask. Readiness is level triggered: a set bit returns
// immediately on every call until the condition clears. A zero want waits
// for Readable or Urgent.
func (d *Device) WaitReady(ctx context.Context, want Readiness) (Readiness, error) {
	if want == 0 {
		want = Readable | Urgent
	}

	for {
		r, wake := d.Poll()
		if r&(want|Hangup) != 0 {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return r, errors.New().Wrap(errors.ErrInterrupted, ctx.Err())
		case <-wake:
		}
	}
}
